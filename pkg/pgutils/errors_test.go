package pgutils

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "unique violation with SQLSTATE",
			err:  errors.New("ERROR: duplicate key value (SQLSTATE 23505)"),
			want: true,
		},
		{
			name: "unique violation code only",
			err:  errors.New("constraint violation 23505"),
			want: true,
		},
		{
			name: "check violation - not unique",
			err:  errors.New("SQLSTATE 23514"),
			want: false,
		},
		{
			name: "generic error",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "pgx driver error format",
			err:  fmt.Errorf("ERROR: duplicate key value violates unique constraint \"subjects_pkey\" (SQLSTATE 23505)"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUniqueViolation(tt.err)
			if got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsCheckViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "check violation with SQLSTATE",
			err:  errors.New("ERROR: new row violates check constraint (SQLSTATE 23514)"),
			want: true,
		},
		{
			name: "check violation code only",
			err:  errors.New("23514"),
			want: true,
		},
		{
			name: "unique violation - not check",
			err:  errors.New("SQLSTATE 23505"),
			want: false,
		},
		{
			name: "generic error",
			err:  errors.New("disk full"),
			want: false,
		},
		{
			name: "pgx driver error format",
			err:  fmt.Errorf("ERROR: new row for relation \"subject_links\" violates check constraint \"chk_link_target\" (SQLSTATE 23514)"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsCheckViolation(tt.err)
			if got != tt.want {
				t.Errorf("IsCheckViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
