package keychain

// TrustedApplications are the signing tools granted access to imported keys.
var TrustedApplications = []string{"/usr/bin/codesign", "/usr/bin/productsign"}

const (
	partitionListStrategyName = "partition-list"
	trustAnchorStrategyName   = "trust-anchor"

	partitionListServices = "apple-tool:,apple:"
)

// AccessStrategy decides how signing tools gain non-interactive access to
// imported keys. It is chosen once per run and is either a
// PartitionListStrategy or a TrustAnchorStrategy.
type AccessStrategy interface {
	Name() string
	// ImportArguments returns the extra arguments for security import.
	ImportArguments() []string
	accessStrategy()
}

// PartitionListStrategy grants access through set-key-partition-list after import.
type PartitionListStrategy struct{}

// Name returns "partition-list".
func (PartitionListStrategy) Name() string { return partitionListStrategyName }

// ImportArguments returns no arguments; the partition list covers the signing tools.
func (PartitionListStrategy) ImportArguments() []string { return nil }

func (PartitionListStrategy) accessStrategy() {}

// TrustAnchorStrategy grants access to TrustedApplications at import time.
type TrustAnchorStrategy struct{}

// Name returns "trust-anchor".
func (TrustAnchorStrategy) Name() string { return trustAnchorStrategyName }

// ImportArguments returns one -T flag per trusted application.
func (TrustAnchorStrategy) ImportArguments() []string {
	arguments := make([]string, 0, 2*len(TrustedApplications))
	for _, application := range TrustedApplications {
		arguments = append(arguments, "-T", application)
	}
	return arguments
}

func (TrustAnchorStrategy) accessStrategy() {}

// SelectStrategy returns the strategy for a host running hostVersion.
func SelectStrategy(hostVersion string) AccessStrategy {
	if CompareVersions(hostVersion, PartitionListMinimumVersion) >= 0 {
		return PartitionListStrategy{}
	}
	return TrustAnchorStrategy{}
}
