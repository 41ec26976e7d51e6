package taxonomy

// kdpii.go - The fixed global KDPII label catalog.
// 33 codes covering the Korean personal-information categories the labeler
// annotates. Projects may add project-scoped labels on top of these; the
// global set itself is stable.

// Category constants for the global catalog.
const (
	CategoryPerson       = "person"
	CategoryIdentifier   = "identifier"
	CategoryContact      = "contact"
	CategoryLocation     = "location"
	CategoryOrganization = "organization"
	CategoryDateTime     = "datetime"
	CategoryFinance      = "finance"
	CategoryNetwork      = "network"
	CategoryHealth       = "health"
)

// defaultEntries is the fixed 33-entry global KDPII catalog.
var defaultEntries = []Entry{
	{Code: "PS_NAME", DisplayName: "이름", Category: CategoryPerson, Background: "#F44E3B"},
	{Code: "PS_NICKNAME", DisplayName: "별명", Category: CategoryPerson, Background: "#FB9E00"},
	{Code: "PS_USERNAME", DisplayName: "계정명", Category: CategoryPerson, Background: "#FCDC00"},
	{Code: "ID_RESIDENT_NUMBER", DisplayName: "주민등록번호", Category: CategoryIdentifier, Background: "#DBDF00"},
	{Code: "ID_PASSPORT", DisplayName: "여권번호", Category: CategoryIdentifier, Background: "#A4DD00"},
	{Code: "ID_DRIVER_LICENSE", DisplayName: "운전면허번호", Category: CategoryIdentifier, Background: "#68CCCA"},
	{Code: "ID_FOREIGNER_NUMBER", DisplayName: "외국인등록번호", Category: CategoryIdentifier, Background: "#73D8FF"},
	{Code: "ID_HEALTH_INSURANCE", DisplayName: "건강보험번호", Category: CategoryIdentifier, Background: "#AEA1FF"},
	{Code: "ID_BUSINESS_NUMBER", DisplayName: "사업자등록번호", Category: CategoryIdentifier, Background: "#FDA1FF"},
	{Code: "QT_MOBILE", DisplayName: "휴대전화번호", Category: CategoryContact, Background: "#D33115"},
	{Code: "QT_PHONE", DisplayName: "유선전화번호", Category: CategoryContact, Background: "#E27300"},
	{Code: "QT_FAX", DisplayName: "팩스번호", Category: CategoryContact, Background: "#FCC400"},
	{Code: "QT_EMAIL", DisplayName: "이메일주소", Category: CategoryContact, Background: "#B0BC00"},
	{Code: "QT_ZIPCODE", DisplayName: "우편번호", Category: CategoryContact, Background: "#68BC00"},
	{Code: "LC_ADDRESS", DisplayName: "주소", Category: CategoryLocation, Background: "#16A5A5"},
	{Code: "LC_PLACE", DisplayName: "장소", Category: CategoryLocation, Background: "#009CE0"},
	{Code: "LC_NATION", DisplayName: "국가", Category: CategoryLocation, Background: "#7B64FF"},
	{Code: "OG_COMPANY", DisplayName: "회사명", Category: CategoryOrganization, Background: "#FA28FF"},
	{Code: "OG_SCHOOL", DisplayName: "학교명", Category: CategoryOrganization, Background: "#9F0500"},
	{Code: "OG_HOSPITAL", DisplayName: "병원명", Category: CategoryOrganization, Background: "#C45100"},
	{Code: "OG_PUBLIC_INSTITUTION", DisplayName: "공공기관명", Category: CategoryOrganization, Background: "#FB9E00"},
	{Code: "DT_BIRTH", DisplayName: "생년월일", Category: CategoryDateTime, Background: "#808900"},
	{Code: "DT_AGE", DisplayName: "나이", Category: CategoryDateTime, Background: "#194D33"},
	{Code: "DT_DATE", DisplayName: "날짜", Category: CategoryDateTime, Background: "#0C797D"},
	{Code: "FN_ACCOUNT_NUMBER", DisplayName: "계좌번호", Category: CategoryFinance, Background: "#0062B1"},
	{Code: "FN_CARD_NUMBER", DisplayName: "카드번호", Category: CategoryFinance, Background: "#653294"},
	{Code: "FN_AMOUNT", DisplayName: "금액", Category: CategoryFinance, Background: "#AB149E"},
	{Code: "NT_IP_ADDRESS", DisplayName: "IP주소", Category: CategoryNetwork, Background: "#333333"},
	{Code: "NT_MAC_ADDRESS", DisplayName: "MAC주소", Category: CategoryNetwork, Background: "#808080"},
	{Code: "NT_URL", DisplayName: "URL", Category: CategoryNetwork, Background: "#666666"},
	{Code: "NT_DEVICE_ID", DisplayName: "기기식별자", Category: CategoryNetwork, Background: "#999999"},
	{Code: "HE_DISEASE", DisplayName: "질병명", Category: CategoryHealth, Background: "#4D4D4D"},
	{Code: "HE_MEDICATION", DisplayName: "약품명", Category: CategoryHealth, Background: "#B3B3B3"},
}

// DefaultEntries returns a copy of the fixed 33-entry global KDPII catalog.
// Hotkeys 1-9 are assigned to the first nine entries, matching the labeler UI.
func DefaultEntries() []Entry {
	out := make([]Entry, len(defaultEntries))
	copy(out, defaultEntries)
	for i := range out {
		out[i].Scope = ScopeGlobal
		if i < 9 {
			out[i].Hotkey = string(rune('1' + i))
		}
	}
	return out
}

// DefaultCatalog returns a catalog preloaded with the global KDPII labels.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	// DefaultEntries are statically valid; a load failure here is a bug.
	if err := c.Load(DefaultEntries(), LoadOptions{Clear: true}); err != nil {
		panic("taxonomy: default catalog failed to load: " + err.Error())
	}
	return c
}
