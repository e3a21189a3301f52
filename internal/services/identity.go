package services

import (
	"time"

	"github.com/google/uuid"
)

// Ext keys generated for every asset.
const (
	ExtUUID     = "uuid"
	ExtCreateTS = "create_ts"
)

// assetNamespace is the name space of deterministic asset uuids.
var assetNamespace = uuid.UUID{0x93, 0x3d, 0x6c, 0x80, 0xde, 0xa9, 0x8c, 0x6b, 0xd1, 0x11, 0x8b, 0x3b, 0x46, 0xa1, 0x81, 0xf1}

// AssetUUID derives a version 5 uuid from manufacturer, model and serial
// number when all three are known, and a random version 4 uuid otherwise.
func AssetUUID(manufacturer, model, serial string) string {
	if manufacturer == "" || model == "" || serial == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(assetNamespace, []byte(manufacturer+model+serial)).String()
}

// CreateTimestamp renders t the way create_ts is stored.
func CreateTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02T15:04:05-0700")
}
