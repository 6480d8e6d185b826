// Zaparoo Tap
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Tap.
//
// Zaparoo Tap is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Tap is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Tap.  If not, see <http://www.gnu.org/licenses/>.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ZaparooProject/zaparoo-tap/pkg/readers"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/broker"
	"github.com/ZaparooProject/zaparoo-tap/pkg/readers/session"
	"github.com/rs/zerolog/log"
)

// List prints one line per reader.
func List(sess *session.Session, out io.Writer) error {
	ds, err := sess.ListReaders()
	if err != nil {
		return fmt.Errorf("failed to list readers: %w", err)
	}
	if len(ds) == 0 {
		_, _ = fmt.Fprintln(out, "No readers found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tKIND\tNAME")
	for _, d := range ds {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Kind, d.Name)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write reader list: %w", err)
	}
	return nil
}

// await waits for f, cancelling the pending operation when ctx ends first.
func await[T any](ctx context.Context, sess *session.Session, f *broker.Future[T]) (T, error) {
	res, err := f.Wait(ctx)
	if err != nil {
		sess.Cancel()
		return res, fmt.Errorf("interrupted: %w", err)
	}
	return res, nil
}

// Read connects to readerName and prints the next card as JSON.
func Read(
	ctx context.Context,
	sess *session.Session,
	readerName string,
	timeout time.Duration,
	out io.Writer,
) error {
	if err := sess.Connect(ctx, readerName); err != nil {
		return fmt.Errorf("failed to connect reader: %w", err)
	}
	defer sess.Disconnect()

	f, err := sess.BeginRead(timeout)
	if err != nil {
		return fmt.Errorf("failed to start read: %w", err)
	}
	log.Info().Msgf("waiting %s for a card on %s", timeout, sess.ReaderName())

	res, err := await(ctx, sess, f)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("read failed: %w", res.Err)
	}

	enc := json.NewEncoder(out)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to print read: %w", err)
	}
	return nil
}

// WriteOptions describe a tap-then-write.
type WriteOptions struct {
	Reader   string
	Text     string
	Language string
	// Wait bounds waiting for a card when none is on the reader.
	Wait time.Duration
	// Timeout bounds the write itself.
	Timeout time.Duration
}

// Write connects, waits for a card if none is present and writes the text
// record to it.
func Write(ctx context.Context, sess *session.Session, opts WriteOptions, out io.Writer) error {
	if err := sess.Connect(ctx, opts.Reader); err != nil {
		return fmt.Errorf("failed to connect reader: %w", err)
	}
	defer sess.Disconnect()

	if sess.Status().Tag == nil {
		_, _ = fmt.Fprintf(out, "Tap a card on %s to write it.\n", sess.ReaderName())
		f, err := sess.BeginRead(opts.Wait)
		if err != nil {
			return fmt.Errorf("failed to wait for card: %w", err)
		}
		res, err := await(ctx, sess, f)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("no card to write: %w", res.Err)
		}
	}

	f, err := sess.BeginWrite(opts.Text, opts.Language, opts.Timeout)
	if err != nil {
		if errors.Is(err, readers.ErrNoTagPresent) {
			return errors.New("card was removed before writing")
		}
		return fmt.Errorf("failed to start write: %w", err)
	}
	res, err := await(ctx, sess, f)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("write failed: %w", res.Err)
	}

	_, _ = fmt.Fprintf(out, "Card written: %s\n", opts.Text)
	return nil
}
