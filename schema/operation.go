package schema

import "fmt"

// Operation enumerates every storage operation the service accounts for.
// The zero value is not a valid operation; obtain values from the exported
// constants or ParseOperation.
type Operation uint8

const (
	OpCreateBucket Operation = iota + 1
	OpDeleteBucket
	OpListBucket
	OpGetBucketACL
	OpPutBucketACL
	OpPutBucketWebsite
	OpGetBucketWebsite
	OpDeleteBucketWebsite
	OpHeadBucket
	OpPutObject
	OpCopyObject
	OpGetObject
	OpGetObjectACL
	OpPutObjectACL
	OpHeadObject
	OpDeleteObject
	OpMultiObjectDelete
	OpInitiateMultipartUpload
	OpUploadPart
	OpCompleteMultipartUpload
	OpAbortMultipartUpload
	OpListBucketMultipartUploads
	OpListMultipartUploadParts

	numOperations = iota
)

var opNames = [...]string{
	OpCreateBucket:               "createBucket",
	OpDeleteBucket:               "deleteBucket",
	OpListBucket:                 "listBucket",
	OpGetBucketACL:               "getBucketAcl",
	OpPutBucketACL:               "putBucketAcl",
	OpPutBucketWebsite:           "putBucketWebsite",
	OpGetBucketWebsite:           "getBucketWebsite",
	OpDeleteBucketWebsite:        "deleteBucketWebsite",
	OpHeadBucket:                 "headBucket",
	OpPutObject:                  "putObject",
	OpCopyObject:                 "copyObject",
	OpGetObject:                  "getObject",
	OpGetObjectACL:               "getObjectAcl",
	OpPutObjectACL:               "putObjectAcl",
	OpHeadObject:                 "headObject",
	OpDeleteObject:               "deleteObject",
	OpMultiObjectDelete:          "multiObjectDelete",
	OpInitiateMultipartUpload:    "initiateMultipartUpload",
	OpUploadPart:                 "uploadPart",
	OpCompleteMultipartUpload:    "completeMultipartUpload",
	OpAbortMultipartUpload:       "abortMultipartUpload",
	OpListBucketMultipartUploads: "listBucketMultipartUploads",
	OpListMultipartUploadParts:   "listMultipartUploadParts",
}

// AliasListMultipartUploads is accepted on the write path as another name
// for OpListBucketMultipartUploads. Metrics are stored and reported under
// the canonical name only.
const AliasListMultipartUploads = "listMultipartUploads"

var opByName = func() map[string]Operation {
	m := make(map[string]Operation, numOperations+1)
	for op, name := range opNames {
		if name != "" {
			m[name] = Operation(op)
		}
	}
	m[AliasListMultipartUploads] = OpListBucketMultipartUploads
	return m
}()

// Operations returns every operation in declaration order. The slice is
// freshly allocated on each call.
func Operations() []Operation {
	ops := make([]Operation, 0, numOperations)
	for i := 1; i <= numOperations; i++ {
		ops = append(ops, Operation(i))
	}
	return ops
}

// ParseOperation maps an operation name, or a known alias, to its Operation.
func ParseOperation(name string) (Operation, error) {
	if op, ok := opByName[name]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unknown operation %q", name)
}

// String returns the name used as the metric component of interval keys,
// e.g. "putObject".
func (o Operation) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("Operation(%d)", uint8(o))
}

// Valid reports whether o is one of the declared operations.
func (o Operation) Valid() bool {
	return o >= 1 && int(o) <= numOperations
}

// ResponseName returns the name used for this operation in query responses,
// e.g. "s3:PutObject".
func (o Operation) ResponseName() string {
	name := o.String()
	return "s3:" + string(name[0]-'a'+'A') + name[1:]
}
