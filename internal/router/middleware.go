package router

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blues/fundvault/internal/chain"
	"github.com/blues/fundvault/internal/clock"
	"github.com/blues/fundvault/internal/config"
	"github.com/blues/fundvault/internal/handler"
	"github.com/blues/fundvault/internal/idempotency"
	"github.com/blues/fundvault/internal/logger"
	"github.com/blues/fundvault/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderAccount     = "X-Fund-Account"
	HeaderTimestamp   = "X-Fund-Timestamp"
	HeaderSignature   = "X-Fund-Signature"
	HeaderIdempotency = "Idempotency-Key"
	HeaderRequestID   = "X-Request-Id"
	HeaderReplayed    = "Idempotent-Replayed"
)

// requestLogger 请求日志
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)
		reqLog := logger.With(zap.String("request_id", requestID))
		reqLog.Debug("%s %s query=%q client=%s agent=%q", c.Request.Method, c.Request.URL.Path,
			c.Request.URL.RawQuery, c.ClientIP(), c.Request.UserAgent())

		start := time.Now()
		c.Next()
		reqLog.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// metricsMiddleware 记录请求数和耗时, path 取路由模板避免高基数
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// authMiddleware 确定请求身份; 启用校验时签名者必须与声明的账户一致
func authMiddleware(cfg config.AuthConfig, clk clock.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := chain.NormalizeIdentity(c.GetHeader(HeaderAccount))
		if account == "" {
			handler.ErrorResponse(c, http.StatusUnauthorized, "missing "+HeaderAccount+" header")
			c.Abort()
			return
		}

		if cfg.Enabled {
			if err := verifyRequest(c, account, cfg.MaxSkew, clk); err != nil {
				logger.Warn("Rejected request from %s: %v", account, err)
				handler.ErrorResponse(c, http.StatusUnauthorized, err.Error())
				c.Abort()
				return
			}
		}

		c.Set(handler.AccountKey, account)
		c.Next()
	}
}

func verifyRequest(c *gin.Context, account string, maxSkew time.Duration, clk clock.Clock) error {
	if !chain.IsFundAddress(account) {
		return fmt.Errorf("account %q is not a hex address", account)
	}

	timestamp := c.GetHeader(HeaderTimestamp)
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s header", HeaderTimestamp)
	}
	skew := clk.Now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if maxSkew > 0 && skew > maxSkew {
		return fmt.Errorf("request timestamp outside allowed skew of %s", maxSkew)
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	message := chain.SigningMessage(c.Request.Method, c.Request.URL.Path, timestamp, body)
	signer, err := chain.RecoverSigner(message, c.GetHeader(HeaderSignature))
	if err != nil {
		return err
	}
	if signer.Hex() != account {
		return fmt.Errorf("%w: signed by %s", chain.ErrInvalidSignature, signer.Hex())
	}
	return nil
}

// captureWriter 复制响应体, 供幂等存储保存
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotencyMiddleware 相同 Idempotency-Key 的请求回放首次响应; 处理中返回 409, 5xx 时释放键允许重试
func idempotencyMiddleware(store idempotency.Store, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(HeaderIdempotency)
		if header == "" || store == nil {
			c.Next()
			return
		}
		// 键按身份和路由隔离
		key := c.GetString(handler.AccountKey) + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + header
		ctx := c.Request.Context()

		if resp, ok, err := store.Load(ctx, key); err != nil {
			logger.Error("Load idempotency key %s: %v", header, err)
			handler.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
			c.Abort()
			return
		} else if ok {
			c.Header(HeaderReplayed, "true")
			c.Data(resp.Status, resp.ContentType, resp.Body)
			c.Abort()
			return
		}

		acquired, err := store.Acquire(ctx, key, ttl)
		if err != nil {
			logger.Error("Acquire idempotency key %s: %v", header, err)
			handler.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
			c.Abort()
			return
		}
		if !acquired {
			handler.ErrorResponse(c, http.StatusConflict, "request with this Idempotency-Key is in progress")
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			if err := store.Release(ctx, key); err != nil {
				logger.Error("Release idempotency key %s: %v", header, err)
			}
			return
		}
		resp := &idempotency.Response{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}
		if err := store.Save(ctx, key, resp, ttl); err != nil {
			logger.Error("Save idempotency key %s: %v", header, err)
		}
	}
}
