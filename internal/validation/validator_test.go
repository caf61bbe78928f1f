// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package validation

import (
	"strings"
	"testing"
)

func TestValidator_Singleton(t *testing.T) {
	if Validator() != Validator() {
		t.Error("Validator() should return the same instance on every call")
	}
}

type payload struct {
	Kind string `validate:"required,oneof=pageview custom"`
	Path string `validate:"required,min=1,max=16"`
	Site string `validate:"omitempty,max=8"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   payload
		wantErr bool
		wantMsg string
	}{
		{
			name:  "valid",
			input: payload{Kind: "pageview", Path: "/home"},
		},
		{
			name:  "optional field absent",
			input: payload{Kind: "custom", Path: "/x"},
		},
		{
			name:    "missing required",
			input:   payload{Path: "/home"},
			wantErr: true,
			wantMsg: "Kind is required",
		},
		{
			name:    "bad enum value",
			input:   payload{Kind: "click", Path: "/home"},
			wantErr: true,
			wantMsg: "Kind must be one of",
		},
		{
			name:    "string too long",
			input:   payload{Kind: "pageview", Path: strings.Repeat("a", 17)},
			wantErr: true,
			wantMsg: "Path must be at most 16 characters",
		},
		{
			name:    "optional field too long",
			input:   payload{Kind: "pageview", Path: "/", Site: "123456789"},
			wantErr: true,
			wantMsg: "Site must be at most 8 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(&tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Struct() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestStruct_MultipleErrors(t *testing.T) {
	err := Struct(&payload{Kind: "bogus", Path: ""})
	if err == nil {
		t.Fatal("Struct() = nil, want error")
	}
	if len(err.Fields) != 2 {
		t.Fatalf("got %d field errors, want 2", len(err.Fields))
	}
}
