package models

import (
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name        string
		permissions []string
		required    string
		expected    bool
	}{
		{name: "exact match", permissions: []string{"todos.write"}, required: "todos.write", expected: true},
		{name: "global wildcard", permissions: []string{"*"}, required: "users.delete", expected: true},
		{name: "namespace wildcard write", permissions: []string{"todos.*"}, required: "todos.write", expected: true},
		{name: "namespace wildcard read", permissions: []string{"todos.*"}, required: "todos.read", expected: true},
		{name: "namespace wildcard other namespace", permissions: []string{"todos.*"}, required: "users.write", expected: false},
		{name: "namespace wildcard does not match bare namespace", permissions: []string{"todos.*"}, required: "todos", expected: false},
		{name: "prefix is not a namespace", permissions: []string{"todo.*"}, required: "todos.read", expected: false},
		{name: "nested wildcard unsupported", permissions: []string{"a.*.c"}, required: "a.b.c", expected: false},
		{name: "leading wildcard unsupported", permissions: []string{"*.read"}, required: "todos.read", expected: false},
		{name: "empty set", permissions: nil, required: "todos.read", expected: false},
		{name: "any of several", permissions: []string{"users.read", "todos.write"}, required: "todos.write", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HasPermission(tt.permissions, tt.required)
			if result != tt.expected {
				t.Errorf("HasPermission(%v, %q) = %v, want %v", tt.permissions, tt.required, result, tt.expected)
			}
		})
	}
}

func TestValidatePermissions(t *testing.T) {
	tests := []struct {
		name        string
		permissions []string
		wantErr     bool
	}{
		{name: "exact permissions", permissions: []string{"todos.read", "todos.write"}, wantErr: false},
		{name: "global wildcard", permissions: []string{"*"}, wantErr: false},
		{name: "namespace wildcard", permissions: []string{"todos.*"}, wantErr: false},
		{name: "empty set", permissions: []string{}, wantErr: true},
		{name: "empty string", permissions: []string{""}, wantErr: true},
		{name: "inner wildcard", permissions: []string{"todos.*.read"}, wantErr: true},
		{name: "wildcard without namespace separator", permissions: []string{"todos*"}, wantErr: true},
		{name: "bare dot wildcard", permissions: []string{".*"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePermissions(tt.permissions)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePermissions(%v) error = %v, wantErr %v", tt.permissions, err, tt.wantErr)
			}
		})
	}
}
