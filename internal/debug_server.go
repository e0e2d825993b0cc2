package internal

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"context"
	"embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

// maxInspectRows bounds a page so a large store does not freeze the browser.
const maxInspectRows = 500

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix    string
	Items     []InspectRow
	Truncated bool
	Stats     map[string]any
}

// Inspector renders the raw content of the Badger store as an HTML table.
type Inspector struct {
	db     *badger.DB
	log    *slog.Logger
	tmpl   *template.Template
	mapper RowMapper
	stats  StatsProvider
}

func NewInspector(db *badger.DB, log *slog.Logger, mapper RowMapper, stats StatsProvider) *Inspector {
	if mapper == nil {
		mapper = ChatRowMapper
	}
	return &Inspector{
		db:     db,
		log:    log,
		tmpl:   template.Must(template.ParseFS(templatesFS, "inspect.html")),
		mapper: mapper,
		stats:  stats,
	}
}

func (i *Inspector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "chat:"
	}
	data := PageData{Prefix: prefix, Stats: make(map[string]any)}
	if i.stats != nil {
		data.Stats = i.stats()
	}

	err := i.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if len(data.Items) == maxInspectRows {
				data.Truncated = true
				return nil
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				data.Items = append(data.Items, i.mapper(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		i.log.Error("inspection failed", "prefix", prefix, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := i.tmpl.Execute(w, data); err != nil {
		i.log.Warn("failed to render inspection page", "error", err)
	}
}

// StartDebugServer serves the inspector on its own port until ctx ends.
func StartDebugServer(ctx context.Context, log *slog.Logger, port int, inspector *Inspector) {
	mux := http.NewServeMux()
	mux.Handle("/inspect", inspector)
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Starting debug inspector", "url", fmt.Sprintf("http://localhost:%d/inspect", port))
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("debug inspector stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
}

// ChatRowMapper understands the relay key layout:
// chat:{id}, user:{len}:{user}:chat:{id} and msg:{len}:{chat}:{nanos}:{uuid}.
func ChatRowMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "default",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch {
	case strings.HasPrefix(key, "msg:"):
		row.Type = "MESSAGE"
		var message domain.Message
		if err := json.Unmarshal(val, &message); err == nil {
			row.Namespace = message.ChatID
			row.Timestamp = message.Timestamp.Format(time.TimeOnly)
			row.EntityID = shorten(message.ID.String())
			row.Detail = message.SenderID + ": " + message.Content
		}
	case strings.HasPrefix(key, "chat:"):
		row.Type = "CHAT"
		var chat domain.Chat
		if err := json.Unmarshal(val, &chat); err == nil {
			row.Namespace = chat.ID
			row.EntityID = strings.Join(chat.Participants[:], ",")
			if chat.LastMessageAt != nil {
				row.Timestamp = chat.LastMessageAt.Format(time.TimeOnly)
			}
			if chat.LastMessage != nil {
				row.Detail = *chat.LastMessage
			} else {
				row.Detail = "no message yet"
			}
		}
	case strings.HasPrefix(key, "user:"):
		row.Type = "INDEX"
		if userID, chatID, ok := storage.ParseUserChatKey(key); ok {
			row.EntityID = userID
			row.Namespace = chatID
			row.Detail = "participant index"
		}
	}
	return row
}

func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
