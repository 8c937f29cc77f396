package server

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/photon-storage/go-common/log"

	"github.com/gamevault/escrow-core/api/pagination"
	"github.com/gamevault/escrow-core/api/service"
)

// handleFunc is the service handler adapted onto a gin route. Allowed
// shapes:
//
//	func(*gin.Context) error
//	func(*gin.Context) (*T, error)
//	func(*gin.Context, *Req) error
//	func(*gin.Context, *Req) (*T, error)
//	func(*gin.Context, [*Req,] *pagination.Query) (*pagination.Result, error)
type handleFunc interface{}

var (
	ginCtxType     = reflect.TypeOf(&gin.Context{})
	pageQueryType  = reflect.TypeOf(&pagination.Query{})
	pageResultType = reflect.TypeOf(&pagination.Result{})
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
)

func validateFunc(fn handleFunc) error {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return errors.New("handler must be a function")
	}

	if t.NumIn() < 1 || t.NumIn() > 3 {
		return errors.New("handler must take one to three parameters")
	}

	if t.In(0) != ginCtxType {
		return errors.New("the first parameter must be *gin.Context")
	}

	paginated := false
	for i := 1; i < t.NumIn(); i++ {
		if t.In(i).Kind() != reflect.Ptr {
			return errors.Errorf("parameter %d must be a pointer", i)
		}

		if t.In(i) == pageQueryType {
			paginated = true
		}
	}

	if t.NumIn() == 3 && t.In(2) != pageQueryType {
		return errors.New("the third parameter must be *pagination.Query")
	}

	if t.NumOut() < 1 || t.NumOut() > 2 {
		return errors.New("handler must return one or two values")
	}

	if !t.Out(t.NumOut() - 1).Implements(errorType) {
		return errors.New("the last return value must be an error")
	}

	if paginated && t.Out(0) != pageResultType {
		return errors.New("paginated handlers must return *pagination.Result")
	}

	return nil
}

type response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func (s *Server) handle(fn handleFunc) gin.HandlerFunc {
	if err := validateFunc(fn); err != nil {
		log.Fatal("invalid api handler", "error", err)
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	return func(c *gin.Context) {
		args := make([]reflect.Value, 0, t.NumIn())
		args = append(args, reflect.ValueOf(c))
		for i := 1; i < t.NumIn(); i++ {
			if t.In(i) == pageQueryType {
				args = append(args, reflect.ValueOf(pagination.ParseQuery(c)))
				continue
			}

			req := reflect.New(t.In(i).Elem())
			if err := c.ShouldBind(req.Interface()); err != nil {
				_ = c.Error(err)
				return
			}

			args = append(args, req)
		}

		outs := v.Call(args)
		if errv := outs[len(outs)-1]; !errv.IsNil() {
			_ = c.Error(errv.Interface().(error))
			return
		}

		resp := &response{
			Code: http.StatusOK,
			Msg:  "ok",
		}
		if len(outs) == 2 {
			resp.Data = outs[0].Interface()
		}

		c.JSON(http.StatusOK, resp)
	}
}

// handleError turns errors attached by handlers into the json
// envelope, using the service error-code mapping.
func handleError() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		c.JSON(http.StatusOK, &response{
			Code: service.CodeFor(err),
			Msg:  err.Error(),
		})
	}
}
