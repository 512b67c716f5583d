package session

import (
	"sync"
	"time"
)

// State is the current step of one user's order conversation.
type State int

const (
	StateAwaitingArea State = iota
	StateAwaitingShop
	StateAwaitingPhoto
	StateSelectingProducts
	StateAwaitingQuantity
	StateAwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case StateAwaitingArea:
		return "selecting an area"
	case StateAwaitingShop:
		return "selecting a shop"
	case StateAwaitingPhoto:
		return "photo verification"
	case StateSelectingProducts:
		return "selecting products"
	case StateAwaitingQuantity:
		return "entering a quantity"
	case StateAwaitingConfirmation:
		return "confirming the order"
	}
	return "unknown"
}

type LineItem struct {
	ProductID int64
	Name      string
	Quantity  int
}

// Draft is the in-progress order being assembled. Item order is the
// order products were first added in; re-adding a product overwrites
// its quantity in place.
type Draft struct {
	AreaID    int64
	AreaName  string
	ShopID    int64
	ShopName  string
	PhotoPath string
	Items     []LineItem
}

// SetQuantity inserts or overwrites the line for productID.
// Quantity <= 0 removes the line.
func (d *Draft) SetQuantity(productID int64, name string, qty int) {
	for i := range d.Items {
		if d.Items[i].ProductID == productID {
			if qty <= 0 {
				d.Items = append(d.Items[:i], d.Items[i+1:]...)
				return
			}
			d.Items[i].Quantity = qty
			d.Items[i].Name = name
			return
		}
	}
	if qty > 0 {
		d.Items = append(d.Items, LineItem{ProductID: productID, Name: name, Quantity: qty})
	}
}

func (d *Draft) Quantity(productID int64) int {
	for _, it := range d.Items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

func (d *Draft) HasItems() bool {
	return len(d.Items) > 0
}

// Session is one user's active conversation. At most one exists per
// Telegram user id; it is created on /order and destroyed on
// completion, cancellation or idle expiry.
type Session struct {
	UserID             int64 // registry user id, not the Telegram id
	UserName           string
	State              State
	Draft              Draft
	CurrentProduct     int64 // set while State == StateAwaitingQuantity
	CurrentProductName string
	LastActivity       time.Time
}

// Store holds active sessions keyed by Telegram user id and hands out
// the per-user locks that serialize event handling for one user.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	locks    sync.Map // map[int64]*sync.Mutex
	idle     time.Duration

	now func() time.Time // test hook
}

func NewStore(idle time.Duration) *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		idle:     idle,
		now:      time.Now,
	}
}

// Lock serializes handling of events for one user. Events for different
// users proceed concurrently.
func (s *Store) Lock(tgUserID int64) func() {
	v, _ := s.locks.LoadOrStore(tgUserID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Get returns the user's active session, refreshing its last-activity
// timestamp. An idle-expired session is dropped and reported as absent.
func (s *Store) Get(tgUserID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tgUserID]
	if !ok {
		return nil
	}
	now := s.now()
	if s.idle > 0 && now.Sub(sess.LastActivity) > s.idle {
		delete(s.sessions, tgUserID)
		return nil
	}
	sess.LastActivity = now
	return sess
}

// Put installs the session for the user, replacing any previous one.
func (s *Store) Put(tgUserID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.LastActivity = s.now()
	s.sessions[tgUserID] = sess
}

func (s *Store) Delete(tgUserID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tgUserID)
}
