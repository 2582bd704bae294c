package core

import "github.com/signalsfoundry/ran-scheduler/model"

// UERepository is a fixed-size arena of connected UEs indexed by UEIndex.
// The capacity never grows, so lookups and iteration stay allocation free on
// the per-slot path. Not safe for concurrent use; the UE scheduler owns it.
type UERepository struct {
	ues [model.MaxNofUEs]*UE
	n   int
}

// NewUERepository returns an empty repository.
func NewUERepository() *UERepository { return &UERepository{} }

// AddUE inserts a UE at its index. The index must be free.
func (r *UERepository) AddUE(u *UE) error {
	if int(u.UEIndex) >= model.MaxNofUEs {
		return ErrUENotFound
	}
	if r.ues[u.UEIndex] != nil {
		return ErrUEExists
	}
	r.ues[u.UEIndex] = u
	r.n++
	return nil
}

// Find returns the UE at the given index, or nil.
func (r *UERepository) Find(idx model.UEIndex) *UE {
	if int(idx) >= model.MaxNofUEs {
		return nil
	}
	return r.ues[idx]
}

// FindByRNTI scans for the UE with the given RNTI, or nil.
func (r *UERepository) FindByRNTI(rnti model.RNTI) *UE {
	for _, u := range r.ues {
		if u != nil && u.RNTI == rnti {
			return u
		}
	}
	return nil
}

// Contains reports whether a UE occupies the given index.
func (r *UERepository) Contains(idx model.UEIndex) bool { return r.Find(idx) != nil }

// Remove drops the UE at the given index.
func (r *UERepository) Remove(idx model.UEIndex) error {
	if r.Find(idx) == nil {
		return ErrUENotFound
	}
	r.ues[idx] = nil
	r.n--
	return nil
}

// ForEach visits every connected UE in index order.
func (r *UERepository) ForEach(fn func(*UE)) {
	for _, u := range r.ues {
		if u != nil {
			fn(u)
		}
	}
}

// Len returns the number of connected UEs.
func (r *UERepository) Len() int { return r.n }
