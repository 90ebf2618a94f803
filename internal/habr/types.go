package habr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// flexID is an identifier the API sends either as a JSON number or a string.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

type vacanciesResponse struct {
	Vacancies []habrVacancy `json:"vacancies"`
}

type vacancyResponse struct {
	Vacancy habrVacancy `json:"vacancy"`
}

type habrVacancy struct {
	ID    flexID `json:"id"`
	Title string `json:"title"`
}

type responsesResponse struct {
	Responses []habrResponse `json:"responses"`
}

type habrResponse struct {
	ID        flexID        `json:"id"`
	VacancyID flexID        `json:"vacancy_id"`
	Body      string        `json:"body"`
	Message   string        `json:"message"`
	User      habrApplicant `json:"user"`
}

func (r habrResponse) coverLetter() string {
	if r.Body != "" {
		return r.Body
	}
	return r.Message
}

type habrApplicant struct {
	Login           string          `json:"login"`
	Name            string          `json:"name"`
	ExperienceTotal *habrExperience `json:"experience_total"`
}

type habrExperience struct {
	Months int `json:"months"`
}

type userResponse struct {
	Login    string       `json:"login"`
	Name     string       `json:"name"`
	URL      string       `json:"url"`
	Contacts habrContacts `json:"contacts"`
}

type habrContacts struct {
	Emails     []habrContact `json:"emails"`
	Messengers []habrContact `json:"messengers"`
}

type habrContact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}
