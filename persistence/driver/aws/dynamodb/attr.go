package dynamodb

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// binaryAttr returns the value of the binary attribute with the given name.
func binaryAttr(item map[string]types.AttributeValue, name string) ([]byte, error) {
	a, ok := item[name]
	if !ok {
		return nil, fmt.Errorf("item is corrupt: missing %q attribute", name)
	}

	b, ok := a.(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("item is corrupt: %q attribute should be binary, not %T", name, a)
	}

	return b.Value, nil
}
