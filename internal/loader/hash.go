package loader

import (
	"strconv"

	"github.com/minio/highwayhash"
)

var idKey = []byte("co2yuan3-aiservice-document-ids!")

// DocumentID derives a stable identifier from a document URL.
func DocumentID(location string) string {
	h, err := highwayhash.New64(idKey)
	if err != nil {
		// only fails for a key that is not 32 bytes
		panic(err)
	}
	_, _ = h.Write([]byte(location))
	return strconv.FormatUint(h.Sum64(), 16)
}
