package vectorstore

import "testing"

func TestTableName(t *testing.T) {
	got, err := tableName("k8s-io")
	if err != nil {
		t.Fatalf("tableName: %v", err)
	}
	if got != "docs_k8s_io" {
		t.Errorf("tableName = %q, want docs_k8s_io", got)
	}
}

func TestTableNameRejectsInvalidInput(t *testing.T) {
	if _, err := tableName("'; DROP TABLE docs_x; --"); err == nil {
		t.Fatal("expected error for invalid index name")
	}
}
