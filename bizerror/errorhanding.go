package bizerror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

// ErrorHandling renders errors panicked by handlers or attached to the gin context.
func ErrorHandling() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if ret := recover(); ret != nil {
				err, ok := ret.(error)
				if !ok {
					err = fmt.Errorf("%v", ret)
				}
				HandleError(c, err)
				return
			}
			if err := c.Errors.Last(); err != nil {
				HandleError(c, err)
			}
		}()
		c.Next()
	}
}

// translation turns a matched error into a response body, data is optional.
type translation struct {
	status int
	code   string
	match  func(err error) (message string, data interface{}, ok bool)
}

func sentinel(target error, message string) func(error) (string, interface{}, bool) {
	return func(err error) (string, interface{}, bool) {
		return message, nil, errors.Is(err, target)
	}
}

var translations = []translation{
	{http.StatusBadRequest, "bad_request.body_not_found", sentinel(io.EOF, "body not found")},
	{http.StatusBadRequest, "bad_request.invalid_body_format", func(err error) (string, interface{}, bool) {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return "invalid body format", syntaxErr.Error(), true
		}
		return "", nil, false
	}},
	{http.StatusBadRequest, "common.bad_param", func(err error) (string, interface{}, bool) {
		var validationErr validator.ValidationErrors
		if errors.As(err, &validationErr) {
			return "validation failed", validationErr.Error(), true
		}
		return "", nil, false
	}},
	{http.StatusUnauthorized, "common.unauthenticated", sentinel(ErrUnauthenticated, "unauthenticated")},
	{http.StatusForbidden, "security.forbidden", sentinel(ErrForbidden, "access forbidden")},
	{http.StatusBadRequest, "workflow.invalid_transition", func(err error) (string, interface{}, bool) {
		return err.Error(), nil, errors.Is(err, ErrInvalidTransition)
	}},
	{http.StatusConflict, "common.concurrent_modification",
		sentinel(ErrConcurrentModification, "workflow was modified concurrently, retry later")},
	{http.StatusNotFound, "common.record_not_found", sentinel(gorm.ErrRecordNotFound, "record not found")},
	{http.StatusNotFound, "common.record_not_found", sentinel(ErrNotFound, "record not found")},
}

func HandleError(c *gin.Context, err error) {
	defer c.Abort()
	cause := err
	var ginErr *gin.Error
	if errors.As(err, &ginErr) {
		cause = ginErr.Err
	}

	var bizErr BizError
	if errors.As(cause, &bizErr) {
		respond := bizErr.Respond()
		entry := logrus.WithError(err).WithField("code", respond.Code)
		if respond.Status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Info("request rejected")
		}
		c.JSON(respond.Status, &ErrorBody{Code: respond.Code, Message: respond.Message, Data: respond.Data})
		return
	}

	for _, t := range translations {
		if message, data, ok := t.match(cause); ok {
			logrus.WithError(err).WithField("code", t.code).Info("request rejected")
			c.JSON(t.status, &ErrorBody{Code: t.code, Message: message, Data: data})
			return
		}
	}

	logrus.WithError(err).Error("unexpected error")
	c.JSON(http.StatusInternalServerError, &ErrorBody{Code: "common.internal_server_error", Message: err.Error()})
}
