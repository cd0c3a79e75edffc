package domain

// Address is a Brazilian postal address resolved from a CEP.
type Address struct {
	CEP          string `json:"cep"`
	Street       string `json:"street"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// Bank is an entry of the Brazilian bank directory (COMPE/ISPB listing).
type Bank struct {
	Code     string `json:"code"`
	ISPB     string `json:"ispb,omitempty"`
	Name     string `json:"name"`
	FullName string `json:"full_name,omitempty"`
}
