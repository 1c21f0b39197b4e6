package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Derived ids are name-based so that reprocessing a document yields the same ids.
var idNamespace = uuid.MustParse("6f1c3c2e-6a0b-4d8e-9a57-0f3b8c1d2e47")

func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("chunk\x00%s\x00%d", documentID, index))).String()
}

func NodeID(documentID, key string) string {
	return uuid.NewSHA1(idNamespace, []byte("node\x00"+documentID+"\x00"+key)).String()
}

func EdgeID(documentID, key string) string {
	return uuid.NewSHA1(idNamespace, []byte("edge\x00"+documentID+"\x00"+key)).String()
}

// NewDocumentID returns a random id for a freshly uploaded document.
func NewDocumentID() string {
	return uuid.New().String()
}
