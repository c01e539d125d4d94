package inputs

// Factory creates a MessageInput from config and the batch handler it feeds.
// Each input type (http, kafka) implements and registers a Factory.
type Factory interface {
	Name() string
	ConfigSpec() InputTypeInfo
	Create(cfg Config, handler BatchHandler) (MessageInput, error)
}
