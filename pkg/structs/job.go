package structs

import "fmt"

// JobKey identifies a unique job within the cluster.
type JobKey struct {
	Role        string `json:"role"`
	Environment string `json:"environment"`
	Name        string `json:"name"`
}

// String renders the job key the way it appears in log and error
// messages: "<role>/<environment>/<name>".
func (k JobKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Role, k.Environment, k.Name)
}
