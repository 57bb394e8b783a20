package logging

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ShepherdCMS/shepherd-app/log"
	"github.com/ShepherdCMS/shepherd-app/shepherd/servicemux"
)

// https://github.com/go-chi/chi/blob/master/_examples/logging/main.go

func NewStructuredLogger() func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&StructuredLogger{Logger: log.Request})
}

type StructuredLogger struct {
	Logger logrus.FieldLogger
}

func (l *StructuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	entry := &StructuredLoggerEntry{Logger: l.Logger}
	logFields := logrus.Fields{}

	logFields["ts"] = time.Now().UTC().Format(time.RFC1123)

	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		logFields["req_id"] = reqID
	}

	scheme := "http"
	if servicemux.IsHTTPS(r) {
		scheme = "https"
	}
	logFields["http_scheme"] = scheme
	logFields["http_proto"] = r.Proto
	logFields["http_method"] = r.Method

	logFields["remote_addr"] = r.RemoteAddr
	logFields["forwarded_for"] = r.Header.Get("X-Forwarded-For")
	logFields["user_agent"] = r.UserAgent()

	logFields["uri"] = fmt.Sprintf("%s://%s%s", scheme, r.Host, Redact(r.RequestURI))

	if actorID := r.Header.Get("X-Actor-ID"); actorID != "" {
		logFields["actor_id"] = actorID
	}

	entry.Logger = entry.Logger.WithFields(logFields)

	entry.Logger.Infoln("request started")

	return entry
}

type StructuredLoggerEntry struct {
	Logger logrus.FieldLogger
}

func (l *StructuredLoggerEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	l.Logger = l.Logger.WithFields(logrus.Fields{
		"resp_status": status, "resp_bytes_length": bytes,
		"resp_elapsed_ms": float64(elapsed.Nanoseconds()) / 1000000.0,
	})

	l.Logger.Infoln("request complete")
}

func (l *StructuredLoggerEntry) Panic(v interface{}, stack []byte) {
	l.Logger = l.Logger.WithFields(logrus.Fields{
		"stack": string(stack),
		"panic": fmt.Sprintf("%+v", v),
	})
}

func Redact(uri string) string {
	re := regexp.MustCompile(`Bearer%20([^&]+)(?:&|$)`)
	submatches := re.FindAllStringSubmatch(uri, -1)
	for _, match := range submatches {
		uri = strings.Replace(uri, match[1], "<redacted>", 1)
	}
	return uri
}

// LogEntrySetField adds a field to the request log entry so "request complete"
// carries it. Handlers use it to tag requests with the job they touched.
func LogEntrySetField(r *http.Request, key string, value interface{}) {
	if entry, ok := r.Context().Value(middleware.LogEntryCtxKey).(*StructuredLoggerEntry); ok {
		entry.Logger = entry.Logger.WithField(key, value)
	}
}

type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "logging context value " + k.name
}

// TransactionIDCtxKey carries the request's transaction ID. The same ID rides
// the queue payload, so worker log lines for an import carry it too.
var TransactionIDCtxKey = &contextKey{"TransactionID"}

// NewTransactionID tags each request with a fresh transaction ID in the
// context, the request log entry, and the X-Transaction-ID response header.
func NewTransactionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := uuid.NewRandom().String()
		r = r.WithContext(context.WithValue(r.Context(), TransactionIDCtxKey, tid))
		LogEntrySetField(r, "transaction_id", tid)
		w.Header().Set("X-Transaction-ID", tid)
		next.ServeHTTP(w, r)
	})
}

// GetTransactionID returns the transaction ID set by NewTransactionID, or a
// fresh one when the middleware was not in the chain.
func GetTransactionID(ctx context.Context) string {
	if tid, ok := ctx.Value(TransactionIDCtxKey).(string); ok && tid != "" {
		return tid
	}
	return uuid.NewRandom().String()
}
