package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationsComplete(t *testing.T) {
	ops := Operations()
	assert.Len(t, ops, 23)

	seen := map[string]bool{}
	for _, op := range ops {
		if !op.Valid() {
			t.Fatalf("Operations() yielded invalid operation %d", op)
		}
		name := op.String()
		if seen[name] {
			t.Fatalf("duplicate operation name %q", name)
		}
		seen[name] = true
	}
}

func TestParseOperationRoundTrip(t *testing.T) {
	for _, op := range Operations() {
		got, err := ParseOperation(op.String())
		if err != nil {
			t.Fatalf("ParseOperation(%q): %v", op.String(), err)
		}
		assert.Equal(t, op, got)
	}
}

func TestParseOperationAlias(t *testing.T) {
	op, err := ParseOperation(AliasListMultipartUploads)
	if err != nil {
		t.Fatalf("ParseOperation alias: %v", err)
	}
	assert.Equal(t, OpListBucketMultipartUploads, op)
	assert.Equal(t, "listBucketMultipartUploads", op.String())
}

func TestParseOperationUnknown(t *testing.T) {
	for _, name := range []string{"", "putobject", "s3:PutObject", "teleportObject"} {
		if _, err := ParseOperation(name); err == nil {
			t.Fatalf("ParseOperation(%q) succeeded, want error", name)
		}
	}
}

func TestResponseNames(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreateBucket, "s3:CreateBucket"},
		{OpGetBucketACL, "s3:GetBucketAcl"},
		{OpMultiObjectDelete, "s3:MultiObjectDelete"},
		{OpListBucketMultipartUploads, "s3:ListBucketMultipartUploads"},
		{OpHeadObject, "s3:HeadObject"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.op.ResponseName())
	}
}

func TestInvalidOperation(t *testing.T) {
	var op Operation
	assert.False(t, op.Valid())
	assert.Equal(t, "Operation(0)", op.String())
	assert.False(t, Operation(200).Valid())
}
