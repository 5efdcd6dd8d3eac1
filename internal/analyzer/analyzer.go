package analyzer

import protocol "github.com/tliron/glsp/protocol_3_16"

// Any analyzer may implement this contract, plus whichever provider
// interfaces below it can serve.
type Analyzer interface {
	// Gets called by the server whenever the document text changes
	Changed(code []byte) error
	// When a document is closed
	Close()
}

type HoverProvider interface {
	OnHover(pos protocol.Position) (*protocol.Hover, error)
}

type DefinitionProvider interface {
	OnDefinition(pos protocol.Position) ([]protocol.LocationLink, error)
}

// KeyProvider finds the locale key literal under the cursor.
type KeyProvider interface {
	KeyAt(pos protocol.Position) (key string, literal protocol.Range, ok bool)
}
