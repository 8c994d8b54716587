package relayhandler

type HealthResponse struct {
	Status string `json:"status"`
}

type UsersResponse struct {
	Users []string `json:"users"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
