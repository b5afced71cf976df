package verifier

import (
	"bytes"
	"errors"

	"github.com/tidwall/gjson"

	"github.com/email-verifier/console/internal/models"
)

// Response field names of the upload endpoint.
const (
	keyValidCount       = "validCount"
	keyInvalidCount     = "invalidCount"
	keyCatchAllCount    = "catchAllCount"
	keyValidDownload    = "validDownloadUrl"
	keyInvalidDownload  = "invalidDownloadUrl"
	keyCatchAllDownload = "catchAllDownloadUrl"
)

var errNotObject = errors.New("response body is not a JSON object")

// DecodeResult reads a VerificationResult from a response body. The body must
// be a JSON object; missing or mistyped fields fall back to zero counts and
// nil locators.
func DecodeResult(body []byte) (*models.VerificationResult, error) {
	body = bytes.TrimSpace(body)
	if !gjson.ValidBytes(body) {
		return nil, errNotObject
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, errNotObject
	}

	return &models.VerificationResult{
		ValidCount:       count(root, keyValidCount),
		InvalidCount:     count(root, keyInvalidCount),
		CatchAllCount:    count(root, keyCatchAllCount),
		ValidDownload:    locator(root, keyValidDownload),
		InvalidDownload:  locator(root, keyInvalidDownload),
		CatchAllDownload: locator(root, keyCatchAllDownload),
	}, nil
}

func count(root gjson.Result, key string) int64 {
	v := root.Get(key)
	switch v.Type {
	case gjson.Number, gjson.String:
		if n := v.Int(); n > 0 {
			return n
		}
	}
	return 0
}

func locator(root gjson.Result, key string) *string {
	v := root.Get(key)
	if v.Type != gjson.String || v.Str == "" {
		return nil
	}
	s := v.Str
	return &s
}
