package dynamodb

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestBinaryAttr(t *testing.T) {
	t.Parallel()

	item := map[string]types.AttributeValue{
		"Binary": &types.AttributeValueMemberB{Value: []byte("<value>")},
		"String": &types.AttributeValueMemberS{Value: "<value>"},
	}

	t.Run("it returns the value of a binary attribute", func(t *testing.T) {
		t.Parallel()

		v, err := binaryAttr(item, "Binary")
		if err != nil {
			t.Fatal(err)
		}

		if string(v) != "<value>" {
			t.Fatalf("unexpected value: %q", v)
		}
	})

	t.Run("it returns an error if the attribute is missing", func(t *testing.T) {
		t.Parallel()

		if _, err := binaryAttr(item, "Missing"); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("it returns an error if the attribute is not binary", func(t *testing.T) {
		t.Parallel()

		if _, err := binaryAttr(item, "String"); err == nil {
			t.Fatal("expected an error")
		}
	})
}
