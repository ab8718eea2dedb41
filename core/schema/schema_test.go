package schema_test

import (
	"errors"
	"testing"

	"github.com/relabs-tech/agrigate/core/schema"
)

const (
	ref1 = `{ "type" : "string" ,
		      "$id" : "http://some_host.com/string.json"}`
	ref2 = `{ "$id" : "http://some_host.com/maxlength.json",
	 		  "maxLength" : 5 }`

	topLevel1 = `
	{ "$id" : "http://some_host.com/top1.json",
	  "allOf" : [
		{ "$ref" : "http://some_host.com/string.json" },
		{ "$ref" : "http://some_host.com/maxlength.json" }
		]
	}`
)

func TestValidateBytes(t *testing.T) {
	v, err := schema.NewValidator([]string{topLevel1}, []string{ref1, ref2})
	if err != nil {
		t.Fatalf("No error expected when creating validator, got %v", err)
	}
	schemaID := "http://some_host.com/top1.json"
	if !v.HasSchema(schemaID) {
		t.Fatal("schema not registered")
	}

	if err := v.ValidateBytes([]byte(`"short"`), schemaID); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	err = v.ValidateBytes([]byte(`"a very long string"`), schemaID)
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if len(verr.Violations) == 0 {
		t.Fatal("expected violations")
	}

	if err := v.ValidateBytes([]byte(`"x"`), "http://some_host.com/unknown.json"); err == nil {
		t.Fatal("expected error for unknown schema")
	}
}

func TestNewValidator_MissingID(t *testing.T) {
	if _, err := schema.NewValidator([]string{`{"type":"string"}`}, nil); err == nil {
		t.Fatal("expected error for schema without $id")
	}
}

func TestRequests(t *testing.T) {
	v, err := schema.Requests()
	if err != nil {
		t.Fatalf("cannot load request schemas: %v", err)
	}

	tests := []struct {
		name     string
		schemaID string
		doc      string
		valid    bool
	}{
		{"register ok", schema.Register, `{"username":"bob","email":"bob@x.com","password":"pw"}`, true},
		{"register missing email", schema.Register, `{"username":"bob","password":"pw"}`, false},
		{"register blank username", schema.Register, `{"username":"  ","email":"bob@x.com","password":"pw"}`, false},
		{"login identifier", schema.Login, `{"identifier":"bob","password":"pw"}`, true},
		{"login email", schema.Login, `{"email":"bob@x.com","password":"pw"}`, true},
		{"login no identifier", schema.Login, `{"password":"pw"}`, false},
		{"login empty password", schema.Login, `{"identifier":"bob","password":""}`, false},
		{"change password", schema.ChangePassword, `{"currentPassword":"a","newPassword":"b"}`, true},
		{"reading ok", schema.Reading, `{"SensorId":1,"Value":22.5,"Unit":"C"}`, true},
		{"reading string value", schema.Reading, `{"SensorId":"1","Value":"22.5","Unit":"C","PlantId":null}`, true},
		{"reading missing unit", schema.Reading, `{"SensorId":1,"Value":22.5}`, false},
		{"manual needs timestamp", schema.ManualReading, `{"SensorId":1,"Value":22.5,"Unit":"C"}`, false},
		{"manual ok", schema.ManualReading, `{"SensorId":1,"Value":22.5,"Unit":"C","Timestamp":"2024-01-01T10:00:00Z"}`, true},
		{"classify ok", schema.Classify, `{"image":"aGVsbG8="}`, true},
		{"classify empty", schema.Classify, `{"image":""}`, false},
		{"not an object", schema.Register, `[1,2]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateBytes([]byte(tt.doc), tt.schemaID)
			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Fatal("expected invalid")
			}
		})
	}
}
