package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Store composes the three repositories into the single store.Store
// contract the service layer depends on.
type Store struct {
	*RideStore
	*DriverStore
	*OfferStore
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		RideStore:   NewRideStore(db),
		DriverStore: NewDriverStore(db),
		OfferStore:  NewOfferStore(db),
	}
}
