package merkle

// Service binds the package verifiers to a hasher so callers can depend on
// an interface instead of package functions.
type Service struct {
	Hasher Hasher
}

func NewService() *Service {
	return &Service{Hasher: DefaultHasher}
}

func (s *Service) hasher() Hasher {
	if s == nil || s.Hasher == nil {
		return DefaultHasher
	}
	return s.Hasher
}

func (s *Service) ComputeLeafHash(entryBody []byte) []byte {
	return s.hasher().HashLeaf(entryBody)
}

func (s *Service) VerifyInclusion(index, size uint64, leafHash []byte, path [][]byte, root []byte) error {
	return VerifyInclusion(s.hasher(), index, size, leafHash, path, root)
}

func (s *Service) VerifyConsistency(size1, size2 uint64, path [][]byte, root1, root2 []byte) error {
	return VerifyConsistency(s.hasher(), size1, size2, path, root1, root2)
}
