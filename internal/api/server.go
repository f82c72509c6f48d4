// Package api serves the quantized matmul operations over HTTP. It exists
// for benchmarking and integration against the kernels from other processes;
// tensors travel as JSON, so it is not a high-throughput data path.
package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/aqlm/internal/backend"
	"github.com/samcharles93/aqlm/internal/tensor"
	"github.com/samcharles93/aqlm/pkg/aqlm"
)

type Server struct {
	engine *aqlm.Engine
}

func NewServer(engine *aqlm.Engine) *Server {
	return &Server{engine: engine}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/matmat", s.handleMatMat)
	e.GET("/v1/backends", s.handleBackends)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBackends(c *echo.Context) error {
	return c.JSON(http.StatusOK, BackendsResponse{
		Available: strings.Split(backend.Available(), ","),
		Active:    s.engine.Backend(),
	})
}

func (s *Server) handleMatMat(c *echo.Context) error {
	req, err := decodeJSON[MatMatRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	scheme, err := aqlm.ParseScheme(req.Scheme)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	input, err := req.Input.Tensor("input")
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	codes, err := req.Codes.Tensor("codes")
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	codebooks, err := req.Codebooks.Tensor("codebooks")
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	scales, err := req.Scales.Tensor("scales")
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := validateMatMat(scheme, input, codes, codebooks, scales); err != nil {
		return writeBadRequest(c, err.Error())
	}

	var out *tensor.Tensor
	switch scheme {
	case aqlm.Scheme1x16:
		out, err = s.engine.Code1x16MatMat(input, codes, codebooks, scales)
	case aqlm.Scheme2x8:
		out, err = s.engine.Code2x8MatMat(input, codes, codebooks, scales)
	}
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}

	return c.JSON(http.StatusOK, MatMatResponse{
		ID:      "mm-" + uuid.NewString(),
		Object:  "matmat.result",
		Backend: s.engine.Backend(),
		Output:  payloadFrom(out),
	})
}

// validateMatMat checks the shape contract before the request reaches the
// kernels, whose own checks fire as panics rather than errors.
func validateMatMat(scheme aqlm.Scheme, input, codes, codebooks, scales *tensor.Tensor) error {
	if input.Rank() < 1 {
		return fmt.Errorf("input must have at least one axis")
	}
	k := input.Dim(-1)
	if k%8 != 0 {
		return fmt.Errorf("input trailing axis %d is not a multiple of 8", k)
	}
	if codes.DType != tensor.U16 {
		return fmt.Errorf("codes must be u16, got %s", dtypeName(codes.DType))
	}
	if codes.Rank() < 1 {
		return fmt.Errorf("codes must have at least one axis")
	}
	if !codebooks.DType.IsFloat() {
		return fmt.Errorf("codebooks must be a float type, got %s", dtypeName(codebooks.DType))
	}
	if codebooks.Rank() < 2 {
		return fmt.Errorf("codebooks must have at least (banks, entries) axes")
	}
	banks, entries := 1, 1<<16
	if scheme == aqlm.Scheme2x8 {
		banks, entries = 2, 1<<8
	}
	if codebooks.Dim(0) != banks || codebooks.Dim(1) != entries {
		return fmt.Errorf("codebooks shape %v, want (%d, %d, 1, 8) for scheme %s", codebooks.Shape, banks, entries, scheme)
	}
	if codebooks.NumEl() != banks*entries*8 {
		return fmt.Errorf("codebooks hold %d elements, want %d", codebooks.NumEl(), banks*entries*8)
	}
	if codebooks.DType != input.DType || scales.DType != input.DType {
		return fmt.Errorf("input %s, codebooks %s, scales %s must share an element type",
			dtypeName(input.DType), dtypeName(codebooks.DType), dtypeName(scales.DType))
	}
	m := codes.Dim(0)
	if codebooks.Rank() >= 3 {
		m *= codebooks.Dim(2)
	}
	if codes.NumEl() != codes.Dim(0)*k/8 {
		return fmt.Errorf("%d codes for %d rows of %d groups", codes.NumEl(), codes.Dim(0), k/8)
	}
	if scales.NumEl() != m {
		return fmt.Errorf("%d scales for %d output features", scales.NumEl(), m)
	}
	return nil
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
