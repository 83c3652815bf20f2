package credential

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/org/applock/pkg/models"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("credential: cbor enc mode: %v", err))
	}
}

// encode packs a record as deterministic CBOR, base64 for the string vault.
func encode(rec models.CredentialRecord) (string, error) {
	b, err := encMode.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encoding credential record: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decode(s string) (models.CredentialRecord, error) {
	var rec models.CredentialRecord
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return rec, fmt.Errorf("decoding credential record: %w", err)
	}
	if err := cbor.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("decoding credential record: %w", err)
	}
	return rec, nil
}
