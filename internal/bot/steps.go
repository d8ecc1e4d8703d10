package bot

import "sync"

// Multi-message admin flows. Each names the input the bot expects next.
const (
	stepNone = ""

	stepPlanGB    = "plan_gb"
	stepPlanPrice = "plan_price"
	stepPlanDays  = "plan_days"

	stepSupportText = "support_text"

	stepBroadcastTarget  = "broadcast_target"
	stepBroadcastMessage = "broadcast_message"

	stepMerchantID = "merchant_id"
	stepAPIKey     = "api_key"

	stepAddUserName    = "adduser_name"
	stepAddUserTraffic = "adduser_traffic"
	stepAddUserDays    = "adduser_days"

	stepShowUser = "show_user"
)

// step is where a user is inside a flow plus the answers collected so far.
type step struct {
	Name string
	Data map[string]string
}

// stepStore keeps per-user flow state in memory; a restart drops it.
type stepStore struct {
	mu    sync.Mutex
	steps map[int64]step
}

func newStepStore() *stepStore {
	return &stepStore{steps: make(map[int64]step)}
}

func (s *stepStore) get(userID int64) step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps[userID]
}

// set moves the user to name, keeping previously collected data.
func (s *stepStore) set(userID int64, name string, kv ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.steps[userID]
	st.Name = name
	if st.Data == nil {
		st.Data = make(map[string]string)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		st.Data[kv[i]] = kv[i+1]
	}
	s.steps[userID] = st
}

func (s *stepStore) clear(userID int64) {
	s.mu.Lock()
	delete(s.steps, userID)
	s.mu.Unlock()
}
