package document

import "testing"

func TestValidateCPF(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want bool
	}{
		{"valid formatted", "529.982.247-25", true},
		{"valid bare", "52998224725", true},
		{"mutated check digit", "52998224724", false},
		{"repeated digits", "111.111.111-11", false},
		{"too short", "5299822472", false},
		{"letters", "abc.def.ghi-jk", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateCPF(tc.doc); got != tc.want {
				t.Errorf("ValidateCPF(%q) = %v, want %v", tc.doc, got, tc.want)
			}
		})
	}
}

func TestValidateCNPJ(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want bool
	}{
		{"valid formatted", "11.222.333/0001-81", true},
		{"valid bare", "11222333000181", true},
		{"mutated check digit", "11222333000180", false},
		{"repeated digits", "11.111.111/1111-11", false},
		{"cpf length", "52998224725", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateCNPJ(tc.doc); got != tc.want {
				t.Errorf("ValidateCNPJ(%q) = %v, want %v", tc.doc, got, tc.want)
			}
		})
	}
}

func TestValidateAutoDetect(t *testing.T) {
	if !Validate("529.982.247-25") {
		t.Error("expected 11-digit document to validate as CPF")
	}
	if !Validate("11.222.333/0001-81") {
		t.Error("expected 14-digit document to validate as CNPJ")
	}
	if Validate("1234") {
		t.Error("expected unknown length to be invalid")
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("(11) 98765-4321"); got != "11987654321" {
		t.Errorf("Digits = %q", got)
	}
}
