// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hotlink

import (
	"fmt"
	"time"
)

// Statistics tracks decoder counters and rates
type Statistics struct {
	StartTime time.Time

	// Counters
	Frames         uint64
	CRCErrors      uint64
	LengthErrors   uint64
	Truncated      uint64 // unfinished frames dropped by Flush
	DiscardedBytes uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// Errors returns the total number of discarded frames
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.LengthErrors + s.Truncated
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.Frames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	total := s.Frames + s.Errors()
	var validPercent, crcPercent, lengthPercent float64
	if total > 0 {
		validPercent = float64(s.Frames) * 100.0 / float64(total)
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(total)
		lengthPercent = float64(s.LengthErrors) * 100.0 / float64(total)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.Frames, validPercent)
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d (%.1f%%)\n", s.LengthErrors, lengthPercent)
	}
	if s.Truncated > 0 {
		result += fmt.Sprintf("Truncated:       %8d\n", s.Truncated)
	}
	if s.DiscardedBytes > 0 {
		result += fmt.Sprintf("Discarded Bytes: %8d\n", s.DiscardedBytes)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = Statistics{StartTime: time.Now()}
}
