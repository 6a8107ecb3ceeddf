package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent/persistence"
	"github.com/BaSui01/agentrelay/types"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 响应信封
// =============================================================================

// Response 所有 JSON 接口共用的外层结构，success 为 false 时 error 非空
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 对外暴露的错误，不含底层 cause
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// codeStatus 未显式指定 HTTPStatus 的错误按错误码取状态码，表外一律 500
var codeStatus = map[types.ErrorCode]int{
	types.ErrInvalidRequest:     http.StatusBadRequest,
	types.ErrInvalidTransition:  http.StatusBadRequest,
	types.ErrUnauthorized:       http.StatusUnauthorized,
	types.ErrNotFound:           http.StatusNotFound,
	types.ErrDuplicateName:      http.StatusConflict,
	types.ErrRateLimited:        http.StatusTooManyRequests,
	types.ErrServiceUnavailable: http.StatusServiceUnavailable,
}

func statusOf(err *types.Error) int {
	if err.HTTPStatus != 0 {
		return err.HTTPStatus
	}
	if s, ok := codeStatus[err.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// =============================================================================
// 🎯 写响应
// =============================================================================

// WriteJSON 设置 JSON 头后编码 data
func WriteJSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 状态码已经发出，编码错误只能丢弃
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 200 + {success:true,data}
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data, Timestamp: time.Now()})
}

// WriteError 写出结构化错误。5xx 记 error 日志，其余只记 debug；
// request_id 取自 RequestID 中间件已经写入的响应头。
func WriteError(w http.ResponseWriter, r *http.Request, err *types.Error, logger *zap.Logger) {
	status := statusOf(err)
	logAPIError(logger, err, status)

	body := Response{
		Error: &ErrorInfo{
			Code:       string(err.Code),
			Message:    err.Message,
			Retryable:  err.Retryable,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
	}
	if r != nil {
		body.RequestID = w.Header().Get("X-Request-ID")
	}
	WriteJSON(w, status, body)
}

func logAPIError(logger *zap.Logger, err *types.Error, status int) {
	if logger == nil {
		return
	}
	level := zap.DebugLevel
	if status >= http.StatusInternalServerError {
		level = zap.ErrorLevel
	}
	ce := logger.Check(level, "API error")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("code", string(err.Code)),
		zap.String("message", err.Message),
		zap.Int("status", status),
	}
	if err.Cause != nil {
		fields = append(fields, zap.Error(err.Cause))
	}
	ce.Write(fields...)
}

// WriteErrorMessage 状态码与错误码都由调用方决定
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// WriteFailure 接受任意 error：*types.Error 原样写出，检查点存储的哨兵错误
// 按语义映射，其余一律 500 且不把内部细节返回给客户端。
func WriteFailure(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if apiErr, ok := types.AsError(err); ok {
		WriteError(w, r, apiErr, logger)
		return
	}
	var mapped *types.Error
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		mapped = types.NewError(types.ErrNotFound, "thread not found")
	case errors.Is(err, persistence.ErrInvalidInput):
		mapped = types.NewError(types.ErrInvalidRequest, err.Error())
	case errors.Is(err, persistence.ErrStoreClosed):
		mapped = types.NewError(types.ErrServiceUnavailable, "checkpoint store is closed")
	default:
		mapped = types.NewError(types.ErrInternalError, "internal error")
	}
	WriteError(w, r, mapped.WithCause(err), logger)
}

// =============================================================================
// 🛡️ 请求解析
// =============================================================================

// DecodeJSONBody 严格解码（拒绝未知字段，体积上限 1 MB）。
// 返回非 nil 时错误响应已经写出，调用方直接 return。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		e := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, r, e, logger)
		return e
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	e := types.NewError(types.ErrInvalidRequest, "invalid JSON body")
	if errors.As(err, &tooLarge) {
		e = types.NewError(types.ErrInvalidRequest, "request body too large").
			WithHTTPStatus(http.StatusRequestEntityTooLarge)
	}
	e = e.WithCause(err)
	WriteError(w, r, e, logger)
	return e
}

// ValidateContentType 要求 application/json（允许带 charset 参数），否则 415
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "application/json" {
		return true
	}
	WriteErrorMessage(w, r, http.StatusUnsupportedMediaType, types.ErrInvalidRequest,
		"Content-Type must be application/json", logger)
	return false
}

// =============================================================================
// 📊 ResponseWriter
// =============================================================================

// ResponseWriter 记录状态码与字节数，供日志、指标与 tracing 中间件读取
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	BytesWritten int64
	Written      bool
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader 只有第一次生效
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.Written {
		return
	}
	rw.StatusCode, rw.Written = code, true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	rw.WriteHeader(http.StatusOK)
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 找到底层 writer
func (rw *ResponseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Hijack websocket 升级需要；成功后状态记为 101
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, buf, err := http.NewResponseController(rw.ResponseWriter).Hijack()
	if err != nil {
		return nil, nil, err
	}
	rw.StatusCode, rw.Written = http.StatusSwitchingProtocols, true
	return conn, buf, nil
}

func (rw *ResponseWriter) Flush() {
	_ = http.NewResponseController(rw.ResponseWriter).Flush()
}
