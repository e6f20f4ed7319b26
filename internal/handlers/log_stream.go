// -----------------------------------------------------------------------
// Log Streamer - server log relay for websocket clients
// Consumes log batches from arbor's context channel, filters noise, and
// fans the survivors out as "log" frames alongside the pipeline events.
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/ice/internal/common"
)

// logChannelBuffer is the number of in-flight batches the relay holds
// before arbor starts dropping.
const logChannelBuffer = 10

// defaultLogExcludes keeps the relay from echoing its own traffic. The
// websocket broadcast path logs under these messages, so a relayed line
// must never match them. Configured patterns add to this list, they do
// not replace it.
var defaultLogExcludes = []string{
	"WebSocket",
	"websocket",
	"HTTP request",
}

// LogStreamer consumes log batches from arbor's context channel and
// relays them to websocket clients as log frames.
type LogStreamer struct {
	handler  *WebSocketHandler
	logger   arbor.ILogger
	channel  chan []arbormodels.LogEvent
	minLevel arbor.LogLevel
	exclude  []string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewLogStreamer creates a log streamer for the given websocket
// handler. Level threshold and extra exclusion patterns come from the
// websocket config.
func NewLogStreamer(handler *WebSocketHandler, logger arbor.ILogger, cfg *common.WebSocketConfig) *LogStreamer {
	minLevel := arbor.InfoLevel
	exclude := make([]string, 0, len(defaultLogExcludes))
	exclude = append(exclude, defaultLogExcludes...)
	if cfg != nil {
		if cfg.LogMinLevel != "" {
			minLevel = parseRelayLevel(cfg.LogMinLevel)
		}
		exclude = append(exclude, cfg.LogExcludePatterns...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LogStreamer{
		handler:  handler,
		logger:   logger,
		channel:  make(chan []arbormodels.LogEvent, logChannelBuffer),
		minLevel: minLevel,
		exclude:  exclude,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// GetChannel returns the channel arbor sends log batches to
func (s *LogStreamer) GetChannel() chan []arbormodels.LogEvent {
	return s.channel
}

// Start launches the relay goroutine
func (s *LogStreamer) Start() error {
	s.wg.Add(1)
	go s.relay()
	return nil
}

// Stop drains the relay goroutine
func (s *LogStreamer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// relay processes batches until the channel closes or the streamer is
// stopped
func (s *LogStreamer) relay() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log streamer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-s.channel:
			if !ok {
				return
			}
			for _, event := range batch {
				if !s.shouldRelay(event.Level) {
					continue
				}
				if s.excluded(event.Message) {
					continue
				}
				s.handler.BroadcastLog(formatLogEvent(event))
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// shouldRelay applies the minimum level threshold
func (s *LogStreamer) shouldRelay(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= s.minLevel
}

// excluded reports whether the message matches any exclusion pattern
func (s *LogStreamer) excluded(message string) bool {
	for _, pattern := range s.exclude {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// formatLogEvent flattens an arbor event into a displayable entry.
// Structured fields fold into the message as key=value pairs in key
// order.
func formatLogEvent(event arbormodels.LogEvent) LogEntry {
	message := event.Message
	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for key := range event.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			message += fmt.Sprintf(" %s=%v", key, event.Fields[key])
		}
	}

	return LogEntry{
		Timestamp: event.Timestamp.Format("15:04:05"),
		Level:     levelCode(event.Level.String()),
		Message:   message,
	}
}

// levelCode converts a level name to its three letter display code
func levelCode(level string) string {
	switch strings.ToUpper(level) {
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR":
		return "ERR"
	case "DEBUG":
		return "DBG"
	case "FATAL":
		return "FTL"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}

// parseRelayLevel converts a config level string to an arbor level
func parseRelayLevel(level string) arbor.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}
