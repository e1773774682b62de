package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"calendar-assistant/internal/errs"
)

var tagNamesOnce sync.Once

// useWireNames makes validation errors name fields the way clients send them.
func useWireNames() {
	tagNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// bindError turns a binding failure into a validation error naming the field.
func bindError(err error) error {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		if fe.Tag() == "required" {
			return errs.Missing(fe.Field())
		}
		reason := fmt.Sprintf("failed %q", fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("failed %q (%s)", fe.Tag(), fe.Param())
		}
		return errs.Malformed(fe.Field(), reason)
	}
	return errs.Malformed("body", err.Error())
}

func (a *App) bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		a.fail(c, bindError(err))
		return false
	}
	return true
}

func (a *App) bindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		a.fail(c, bindError(err))
		return false
	}
	return true
}
