package normalizer

import (
	"reflect"
	"testing"
)

func TestNormalizeResolvesPortugueseAliases(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"nome":"Maria","telefone":"(62) 99999-1234","email":"m@x.com"}`))

	if lead.Name != "Maria" {
		t.Errorf("name = %q, want Maria", lead.Name)
	}
	if lead.Phone != "(62) 99999-1234" {
		t.Errorf("phone = %q", lead.Phone)
	}
	if lead.Email != "m@x.com" {
		t.Errorf("email = %q", lead.Email)
	}
	if len(lead.ExtraFields) != 0 {
		t.Errorf("expected no extra fields, got %v", lead.ExtraFields.Keys())
	}
}

func TestNormalizeRecoversPhoneFromMappedAnswers(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"respostas_mapeadas":{"Qual seu nome?":"João","Qual seu telefone?":"11987654321","Bairro":"Centro"}}`))

	if lead.Phone != "11987654321" {
		t.Fatalf("phone = %q, want nested answer", lead.Phone)
	}
	if lead.Name != "João" {
		t.Errorf("name = %q, want nested answer", lead.Name)
	}
	if v, ok := lead.ExtraFields.Get("Bairro"); !ok || v != "Centro" {
		t.Errorf("unclaimed nested answer not preserved: %v", lead.ExtraFields)
	}
	if lead.ExtraFields.Has("Qual seu telefone?") {
		t.Error("claimed nested answer leaked into extra fields")
	}
}

func TestNormalizeNestedScanAcceptsPhoneShapedValue(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"answers":{"Pergunta 1":"+55 (21) 98888-7777"}}`))
	if lead.Phone != "+55 (21) 98888-7777" {
		t.Fatalf("phone = %q", lead.Phone)
	}
}

func TestNormalizeAliasPriorityIsDeterministic(t *testing.T) {
	n := New()
	raw := []byte(`{"nome":"Segundo","name":"Primeiro","full_name":"Terceiro"}`)

	for i := 0; i < 20; i++ {
		if got := n.Normalize(raw).Name; got != "Primeiro" {
			t.Fatalf("run %d: name = %q, want first alias in table order", i, got)
		}
	}
}

func TestNormalizeSkipsEmptyAliasValues(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"name":"  ","nome":"Ana"}`))
	if lead.Name != "Ana" {
		t.Fatalf("name = %q, want Ana", lead.Name)
	}
}

func TestNormalizeDoesNotTreatPostalCodeAsPhone(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"nome":"Ana","cep":"74000-000","numero":"74000000"}`))

	if lead.Phone != "" {
		t.Fatalf("phone = %q, postal code must not be classified as phone", lead.Phone)
	}
	if v, _ := lead.ExtraFields.Get("cep"); v != "74000-000" {
		t.Errorf("cep not preserved verbatim: %q", v)
	}
}

func TestNormalizeTopLevelShapeScan(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"contato":"(11) 98765-4321","outro":"x"}`))
	if lead.Phone != "(11) 98765-4321" {
		t.Fatalf("phone = %q", lead.Phone)
	}
	if lead.ExtraFields.Has("contato") {
		t.Error("claimed key must not appear in extra fields")
	}
}

func TestNormalizeMalformedPayloadIsDegraded(t *testing.T) {
	n := New()
	for _, raw := range []string{`{"nome":`, `"{broken"`, `[1,2,3]`, ``} {
		lead := n.Normalize([]byte(raw))
		if !lead.Degraded {
			t.Errorf("%q: expected degraded lead", raw)
			continue
		}
		if lead.Name != "error" || lead.Email != "error" || lead.Phone != "error" || lead.Message != "error" {
			t.Errorf("%q: degraded lead fields not marked: %+v", raw, lead)
		}
	}
}

func TestNormalizeUnwrapsJSONEncodedString(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`"{\"nome\":\"Ana\",\"whatsapp\":\"62988887777\"}"`))
	if lead.Degraded {
		t.Fatal("string-encoded object must be parsed once")
	}
	if lead.Name != "Ana" || lead.Phone != "62988887777" {
		t.Fatalf("lead = %+v", lead)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := New()
	raw := []byte(`{"nome":"Maria","telefone":"62999991234","utm_source":"google","campanha":"verao","respostas":{"Orçamento?":"sim"}}`)

	first := n.Normalize(raw)
	second := n.Normalize(raw)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalization not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestNormalizePreservesUnmappedScalarsInOrder(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"session_id":"s1","utm_source":"google","nome":"Ana","idade":31,"aceita":true,"extra":{"deep":"x"}}`))

	keys := lead.ExtraFields.Keys()
	want := []string{"utm_source", "idade", "aceita"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("extra keys = %v, want %v", keys, want)
	}
	if v, _ := lead.ExtraFields.Get("idade"); v != "31" {
		t.Errorf("idade = %q", v)
	}
}

func TestExtraFieldsNeverContainCanonicalKeys(t *testing.T) {
	n := New()
	payloads := []string{
		`{"nome":"A","name":"B","email":"a@b.com","Email":"c@d.com","phone":"11999998888","mensagem":"oi","servico":"solar"}`,
		`{"respostas_mapeadas":{"Seu email":"a@b.com","Seu telefone":"11999998888"},"origem":"lp"}`,
		`{"contato":"(11) 98765-4321","session_id":"s1","cidade":"Goiânia"}`,
	}
	for _, raw := range payloads {
		p, err := ParsePayload([]byte(raw))
		if err != nil {
			t.Fatalf("ParsePayload(%s): %v", raw, err)
		}
		lead, taken := n.resolve(p)
		for _, key := range lead.ExtraFields.Keys() {
			if taken.has("", key) || IsMetaKey(key) {
				t.Errorf("%s: extra field %q was already captured", raw, key)
			}
		}
		for _, c := range mappedAnswerContainers {
			for _, key := range lead.ExtraFields.Keys() {
				if taken.has(c, key) {
					t.Errorf("%s: nested answer %q was already captured", raw, key)
				}
			}
		}
	}
}

func TestNormalizeKeepsAliasCandidatesThatLost(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"name":"Primeiro","nome":"Segundo","email":"a@b.com","Email":"outro@b.com"}`))

	if lead.Name != "Primeiro" || lead.Email != "a@b.com" {
		t.Fatalf("name=%q email=%q", lead.Name, lead.Email)
	}
	want := []string{"nome", "Email"}
	if keys := lead.ExtraFields.Keys(); !reflect.DeepEqual(keys, want) {
		t.Fatalf("extra keys = %v, want %v", keys, want)
	}
	if v, _ := lead.ExtraFields.Get("nome"); v != "Segundo" {
		t.Errorf("nome = %q", v)
	}
	if v, _ := lead.ExtraFields.Get("Email"); v != "outro@b.com" {
		t.Errorf("Email = %q", v)
	}

	nested := n.Normalize([]byte(`{"name":"Ana","respostas_mapeadas":{"nome":"Ana Maria","Cidade":"Goiânia"}}`))
	if nested.Name != "Ana" {
		t.Fatalf("name = %q", nested.Name)
	}
	if v, _ := nested.ExtraFields.Get("nome"); v != "Ana Maria" {
		t.Errorf("nested nome = %q, want it kept as extra", v)
	}
	if v, _ := nested.ExtraFields.Get("Cidade"); v != "Goiânia" {
		t.Errorf("Cidade = %q", v)
	}
}

func TestNormalizeFollowsDocumentOrder(t *testing.T) {
	n := New()
	received := n.Normalize([]byte(`{"respostas_mapeadas":{"Telefone comercial":"(11) 3333-4444","Celular":"(11) 98765-4321"},"utm_campaign":"x","cidade":"Goiânia"}`))
	reordered := n.Normalize([]byte(`{"cidade":"Goiânia","utm_campaign":"x","respostas_mapeadas":{"Celular":"(11) 98765-4321","Telefone comercial":"(11) 3333-4444"}}`))

	if received.Phone != "(11) 3333-4444" {
		t.Fatalf("phone = %q, want first nested phone answer", received.Phone)
	}
	if reordered.Phone != "(11) 98765-4321" {
		t.Fatalf("reordered phone = %q", reordered.Phone)
	}
	if got, want := received.ExtraFields.Keys(), []string{"Celular", "utm_campaign", "cidade"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("extra keys = %v, want %v", got, want)
	}
}

func TestNormalizeTopLevelPhoneHintNeedsDigits(t *testing.T) {
	n := New()
	lead := n.Normalize([]byte(`{"nome":"Ana","whatsapp_optin":"sim"}`))

	if lead.Phone != "" {
		t.Fatalf("phone = %q, want empty", lead.Phone)
	}
	if v, _ := lead.ExtraFields.Get("whatsapp_optin"); v != "sim" {
		t.Fatalf("whatsapp_optin = %q, want it kept as extra", v)
	}

	lead = n.Normalize([]byte(`{"nome":"Ana","whatsapp_contato":"62 99999-1234 ramal 2"}`))
	if lead.Phone != "62 99999-1234 ramal 2" {
		t.Fatalf("hinted phone with digits = %q", lead.Phone)
	}
}

func TestNormalizeUrgentFlag(t *testing.T) {
	n := New()
	cases := map[string]bool{
		`{"urgente":"Sim"}`:   true,
		`{"urgent":true}`:     true,
		`{"is_urgent":"1"}`:   true,
		`{"urgencia":"não"}`:  false,
		`{"nome":"sem flag"}`: false,
	}
	for raw, want := range cases {
		if got := n.Normalize([]byte(raw)).Urgent; got != want {
			t.Errorf("%s: urgent = %v, want %v", raw, got, want)
		}
	}
}

func TestWithOverridesTakesPrecedence(t *testing.T) {
	base := New()
	n := base.WithOverrides(map[Field][]string{FieldPhone: {"campo_3"}})
	raw := []byte(`{"campo_3":"11987654321","phone":"21999990000"}`)

	if got := n.Normalize(raw).Phone; got != "11987654321" {
		t.Fatalf("override phone = %q", got)
	}
	if got := base.Normalize(raw).Phone; got != "21999990000" {
		t.Fatalf("base normalizer must be unchanged, got %q", got)
	}
	if n.Normalize(raw).ExtraFields.Has("campo_3") {
		t.Error("override key must not leak into extra fields")
	}
}

func TestLooksLikePhone(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"(62) 99999-1234", true},
		{"+55 62 99999 1234", true},
		{"74000-000", false},
		{"12345678", false},
		{"ligue 62999991234", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := LooksLikePhone(tc.in); got != tc.want {
			t.Errorf("LooksLikePhone(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEditKey(t *testing.T) {
	n := New()
	cases := []struct {
		raw   string
		field Field
		want  string
	}{
		{`{"nome":"Ana","telefone":"62999991234"}`, FieldName, "nome"},
		{`{"nome":"Ana","telefone":"62999991234"}`, FieldPhone, "telefone"},
		{`{"respostas":{"Seu telefone":"62999991234"}}`, FieldPhone, "phone"},
		{`{"nome":"Ana"}`, FieldEmail, "email"},
		{`{broken`, FieldMessage, "message"},
	}
	for _, tc := range cases {
		if got := n.EditKey([]byte(tc.raw), tc.field); got != tc.want {
			t.Errorf("EditKey(%s, %s) = %q, want %q", tc.raw, tc.field, got, tc.want)
		}
	}

	override := n.WithOverrides(map[Field][]string{FieldPhone: {"campo_3"}})
	if got := override.EditKey([]byte(`{"nome":"Ana"}`), FieldPhone); got != "campo_3" {
		t.Errorf("override EditKey = %q, want campo_3", got)
	}
}
