package storage

// DefaultKeyPrefix namespaces every key this module writes to a shared store.
const DefaultKeyPrefix = "i18ncache:"

const (
	translationsKeyPart = "translations:"
	refreshLockKeyPart  = "refresh_lock:"

	lockValue = "1"
)

// TranslationsKey is the shared-store key holding the CacheRecord of a locale.
func TranslationsKey(prefix, locale string) string {
	return prefix + translationsKeyPart + locale
}

// RefreshLockKey is the shared-store key used as the per-locale refresh lock.
func RefreshLockKey(prefix, locale string) string {
	return prefix + refreshLockKeyPart + locale
}

// LockValue is written under RefreshLockKey. It carries no owner identity.
func LockValue() string {
	return lockValue
}
