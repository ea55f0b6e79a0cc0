package domain

// Actor is the acting user as resolved by the auth layer.
type Actor struct {
	UserID  string `json:"userId"`
	IsAdmin bool   `json:"isAdmin"`
}

// SystemActor is used when no auth layer is configured.
var SystemActor = Actor{UserID: "system", IsAdmin: true}

// CanModify gates update/delete operations on owned records.
func (a Actor) CanModify(ownerID string) bool {
	if a.IsAdmin {
		return true
	}
	return a.UserID != "" && a.UserID == ownerID
}
