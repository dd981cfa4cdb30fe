/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// FrameType tags each frame on the output stream.
type FrameType string

const (
	FrameTextDelta       FrameType = "text-delta"
	FrameToolCall        FrameType = "tool-call"
	FrameToolResult      FrameType = "tool-result"
	FrameDone            FrameType = "done"
	FrameBudgetExhausted FrameType = "budget-exhausted"
	FrameFatal           FrameType = "error"
)

// Terminal reports whether t ends a stream.
func (t FrameType) Terminal() bool {
	return t == FrameDone || t == FrameBudgetExhausted || t == FrameFatal
}

// FrameError describes a failed tool call, or a fatal session error.
type FrameError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Index   *int   `json:"index,omitempty"`
}

// Frame is one event on the output stream.
type Frame struct {
	Type      FrameType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Sequence  *int           `json:"sequence,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     *FrameError    `json:"error,omitempty"`
	Steps     int            `json:"steps,omitempty"`
}

// Emitter receives frames in stream order. An error from Emit stops the
// session at the next safe point.
type Emitter interface {
	Emit(Frame) error
}

// EmitterFunc adapts a function to an Emitter.
type EmitterFunc func(Frame) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(fr Frame) error { return f(fr) }

// NDJSONWriter writes frames as newline-delimited JSON, flushing after
// each frame when the writer supports it.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.Writer
}

// NewNDJSONWriter returns an Emitter writing to w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w), w: w}
}

// Emit implements Emitter.
func (n *NDJSONWriter) Emit(f Frame) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enc.Encode(f); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Type, err)
	}
	if fl, ok := n.w.(http.Flusher); ok {
		fl.Flush()
	}
	return nil
}

// Recorder collects frames in memory.
type Recorder struct {
	mu     sync.Mutex
	frames []Frame
}

// Emit implements Emitter.
func (r *Recorder) Emit(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

// Frames returns a copy of the recorded frames.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}
