package domain

// Provider represents supported delegated-mail providers
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
)

// IsValidProvider checks if the provider is supported
func IsValidProvider(p string) bool {
	switch Provider(p) {
	case ProviderGoogle, ProviderMicrosoft:
		return true
	default:
		return false
	}
}
