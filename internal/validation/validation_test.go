package validation

import (
	"strings"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{"simple", "u1", false},
		{"firebase style", "1LjViNIEB14XNArQtwaP", false},
		{"with hyphen", "student-42", false},
		{"with underscore", "student_42", false},
		{"max length", strings.Repeat("a", MaxUserIDLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxUserIDLength+1), true},
		{"starts with hyphen", "-u1", true},
		{"starts with underscore", "_u1", true},
		{"contains slash", "u1/u2", true},
		{"contains dot", "u.1", true},
		{"contains space", "u 1", true},
		{"non ascii", "üser", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.userID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID(%q) error = %v, wantErr %v", tt.userID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateModuleID(t *testing.T) {
	tests := []struct {
		name     string
		moduleID string
		wantErr  bool
	}{
		{"document id", "1LjViNIEB14XNArQtwaP", false},
		{"max length", strings.Repeat("m", MaxModuleIDLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("m", MaxModuleIDLength+1), true},
		{"path traversal", "../etc", true},
		{"query string", "mod?x=1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModuleID(tt.moduleID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModuleID(%q) error = %v, wantErr %v", tt.moduleID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDeploy(t *testing.T) {
	if errs := ValidateDeploy("u1", "mod"); errs.HasErrors() {
		t.Fatalf("expected no errors, got %v", errs)
	}

	errs := ValidateDeploy("", "bad/module")
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "user_id" || errs[1].Field != "module_id" {
		t.Errorf("unexpected fields: %q, %q", errs[0].Field, errs[1].Field)
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name       string
		schema     Schema
		body       string
		wantFields []string
		wantErr    bool
	}{
		{"valid deploy", DeploySchema, `{"user_id":"u1","module_id":"m1"}`, nil, false},
		{"deploy with stack name", DeploySchema, `{"user_id":"u1","module_id":"m1","stackName":"dev"}`, nil, false},
		{"deploy missing module", DeploySchema, `{"user_id":"u1"}`, []string{"module_id"}, false},
		{"deploy missing both", DeploySchema, `{}`, []string{"user_id", "module_id"}, false},
		{"deploy wrong type", DeploySchema, `{"user_id":1,"module_id":"m1"}`, []string{"user_id"}, false},
		{"deploy empty user", DeploySchema, `{"user_id":"","module_id":"m1"}`, []string{"user_id"}, false},
		{"deploy not an object", DeploySchema, `[]`, []string{"body"}, false},
		{"valid destroy", DestroySchema, `{"user_id":"u1"}`, nil, false},
		{"destroy missing user", DestroySchema, `{}`, []string{"user_id"}, false},
		{"malformed json", DestroySchema, `{"user_id":`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := ValidateDocument(tt.schema, []byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateDocument() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("expected %d validation errors, got %d: %v", len(tt.wantFields), len(errs), errs)
			}
			for _, want := range tt.wantFields {
				found := false
				for _, e := range errs {
					if e.Field == want {
						found = true
					}
				}
				if !found {
					t.Errorf("expected validation error for field %q, got %v", want, errs)
				}
			}
		})
	}
}

func TestQuoted(t *testing.T) {
	got := quoted("missing properties: 'user_id', 'module_id'")
	if len(got) != 2 || got[0] != "user_id" || got[1] != "module_id" {
		t.Errorf("quoted() = %v", got)
	}
	if got := quoted("no quotes here"); len(got) != 0 {
		t.Errorf("quoted() = %v, want empty", got)
	}
}

func TestFieldErrors(t *testing.T) {
	var errs FieldErrors
	if errs.HasErrors() {
		t.Error("empty collection should not have errors")
	}
	if errs.Error() != "" {
		t.Errorf("empty collection error = %q", errs.Error())
	}

	errs.Add("user_id", "", "user_id is required")
	if errs.Error() != "user_id: user_id is required" {
		t.Errorf("unexpected error string: %q", errs.Error())
	}

	errs.Add("module_id", "", "module_id is required")
	errs.Add("module_id", "x", "module_id is too long")
	if got, want := errs.Error(), "user_id: user_id is required (also invalid: module_id)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := errs.First(); got == nil || got.Field != "user_id" {
		t.Errorf("First() = %+v, want user_id", got)
	}
	if got := strings.Join(errs.Fields(), ","); got != "user_id,module_id" {
		t.Errorf("Fields() = %q", got)
	}
}

func TestValidateDeployReportsFirstField(t *testing.T) {
	errs := ValidateDeploy("", "")
	if got := errs.Fields(); len(got) != 2 || got[0] != "user_id" || got[1] != "module_id" {
		t.Fatalf("Fields() = %v, want [user_id module_id]", got)
	}
	if !strings.HasPrefix(errs.Error(), "user_id: ") || !strings.HasSuffix(errs.Error(), "(also invalid: module_id)") {
		t.Errorf("Error() = %q", errs.Error())
	}
}
