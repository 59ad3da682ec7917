package httpmw

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Logger logs each outbound call. maxBody limits how many body bytes are logged:
// 0 disables body logging, a negative value logs the whole body.
func Logger(logger *slog.Logger, maxBody int) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("url", req.URL.String()),
				slog.String("request_id", req.Header.Get(RequestIDHeader)),
			}

			reqAttrs := attrs
			if body := peekRequestBody(req, maxBody); body != "" {
				reqAttrs = append(reqAttrs, slog.String("body", body))
			}
			logger.LogAttrs(req.Context(), slog.LevelDebug, "[HTTP] Request", reqAttrs...)

			start := time.Now()
			resp, err := next.RoundTrip(req)
			attrs = append(attrs, slog.Duration("duration", time.Since(start)))

			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
				logger.LogAttrs(req.Context(), slog.LevelError, "[HTTP] Request failed", attrs...)
				return resp, err
			}

			attrs = append(attrs, slog.Int("status", resp.StatusCode))
			if body := peekResponseBody(resp, maxBody); body != "" {
				attrs = append(attrs, slog.String("body", body))
			}

			level := slog.LevelDebug
			switch {
			case resp.StatusCode >= 500:
				level = slog.LevelError
			case resp.StatusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(req.Context(), level, "[HTTP] Response", attrs...)

			return resp, nil
		})
	}
}

func peekRequestBody(req *http.Request, maxBody int) string {
	if maxBody == 0 || req.GetBody == nil {
		return ""
	}
	rc, err := req.GetBody()
	if err != nil {
		return ""
	}
	defer rc.Close()
	return readLimited(rc, maxBody)
}

// peekResponseBody reads the full body, restores it for the caller and returns
// the logged prefix.
func peekResponseBody(resp *http.Response, maxBody int) string {
	if maxBody == 0 || resp.Body == nil {
		return ""
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	if maxBody > 0 && len(data) > maxBody {
		data = data[:maxBody]
	}
	return string(data)
}

func readLimited(r io.Reader, maxBody int) string {
	if maxBody > 0 {
		r = io.LimitReader(r, int64(maxBody))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return string(data)
}
