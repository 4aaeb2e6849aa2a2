// Package calllog records every panel command the provisioner issues.
package calllog

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Direction tells whether a command changed the panel or only read from it.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Entry is one recorded command.
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Target    string    `gorm:"size:255;index" json:"target"`
	Command   string    `gorm:"size:64;index" json:"command"`
	Label     string    `gorm:"size:320" json:"label"`
	Payload   string    `gorm:"type:text" json:"payload"`
	Direction Direction `gorm:"size:8" json:"direction"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName pins the table name regardless of naming strategy.
func (Entry) TableName() string { return "vesta_call_log" }

// Label formats the "host|command" label.
func Label(target, command string) string {
	return target + "|" + command
}

// Recorder persists entries. A failing recorder never fails the command it describes.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Multi fans an entry out to several recorders.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SlogRecorder writes entries to a structured logger.
type SlogRecorder struct {
	log *slog.Logger
}

func NewSlogRecorder(l *slog.Logger) *SlogRecorder {
	if l == nil {
		l = slog.Default()
	}
	return &SlogRecorder{log: l}
}

func (r *SlogRecorder) Record(ctx context.Context, e Entry) error {
	level := slog.LevelInfo
	if !e.Success {
		level = slog.LevelWarn
	}
	r.log.Log(ctx, level, "vesta call",
		"target", e.Target,
		"label", e.Label,
		"direction", e.Direction,
		"success", e.Success,
		"payload", e.Payload,
	)
	return nil
}
