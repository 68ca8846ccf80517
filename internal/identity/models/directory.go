package models

// UserFilter narrows a directory listing. Empty fields match every user.
type UserFilter struct {
	KYCStatus  KYCStatus
	UserStatus UserStatus
}

func (f UserFilter) Matches(u *User) bool {
	if f.KYCStatus != "" && u.KYCStatus != f.KYCStatus {
		return false
	}
	if f.UserStatus != "" && u.UserStatus != f.UserStatus {
		return false
	}
	return true
}

// UserStats counts users by KYC status and by account status.
type UserStats struct {
	Total    int                `json:"total"`
	ByKYC    map[KYCStatus]int  `json:"by_kyc_status"`
	ByStatus map[UserStatus]int `json:"by_user_status"`
}

// NewUserStats starts every known status at zero so overviews list them all.
func NewUserStats() UserStats {
	s := UserStats{
		ByKYC:    make(map[KYCStatus]int, len(AllKYCStatuses)),
		ByStatus: make(map[UserStatus]int, len(AllUserStatuses)),
	}
	for _, k := range AllKYCStatuses {
		s.ByKYC[k] = 0
	}
	for _, st := range AllUserStatuses {
		s.ByStatus[st] = 0
	}
	return s
}

func (s *UserStats) Add(kyc KYCStatus, status UserStatus, n int) {
	s.Total += n
	s.ByKYC[kyc] += n
	s.ByStatus[status] += n
}
