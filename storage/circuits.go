package storage

// SetVerifyingKey stores the encoded verifying key under its circuit id. It
// returns ErrExists if the id is already registered.
func (s *Storage) SetVerifyingKey(circuitID, vk []byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	exists, err := s.hasArtifact(vkPrefix, circuitID)
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}
	return s.setArtifact(vkPrefix, circuitID, vk)
}

// VerifyingKey returns the encoded verifying key of a circuit id, or
// ErrNotFound.
func (s *Storage) VerifyingKey(circuitID []byte) ([]byte, error) {
	var vk []byte
	if err := s.getArtifact(vkPrefix, circuitID, &vk); err != nil {
		return nil, err
	}
	return vk, nil
}

// CircuitIDs returns the ids of every registered verifying key.
func (s *Storage) CircuitIDs() ([][]byte, error) {
	var ids [][]byte
	if err := s.iterateArtifacts(vkPrefix, func(k, _ []byte) bool {
		ids = append(ids, k)
		return true
	}); err != nil {
		return nil, err
	}
	return ids, nil
}
