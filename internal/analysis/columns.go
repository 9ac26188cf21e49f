package analysis

// ColumnType is the storage type of a CDP column.
type ColumnType string

const (
	TypeDate    ColumnType = "date"
	TypeDouble  ColumnType = "double"
	TypeBoolean ColumnType = "boolean"
)

// Column describes one CDP attribute the analyzer may recommend.
type Column struct {
	Name        string     `json:"name"`
	Description string     `json:"desc"`
	Type        ColumnType `json:"type"`
}

// ColumnGroup is a named set of columns.
type ColumnGroup struct {
	Name    string   `json:"group"`
	Columns []Column `json:"columns"`
}

// Columns is the CDP column dictionary offered to the language model.
var Columns = []ColumnGroup{
	{Name: "interests", Columns: []Column{
		{"fa_int_householdsingle", "1인 가구 관련 상품 결제 또는 오피스텔/원룸 거주 추정 고객", TypeDate},
		{"fa_int_householdpet", "반려동물 관련 상품 결제 고객", TypeDate},
		{"fa_int_householdchild", "어린이 관련 상품 결제 고객", TypeDate},
		{"fa_int_householdbaby", "영유아 관련 상품 결제 또는 출산 정책지원금 수령 고객", TypeDate},
		{"fa_int_loan1stfinancial", "1금융권에서 신용 대출 실행 고객", TypeDate},
		{"fa_int_loan2ndfinancial", "저축은행, 카드사, 보험사, 증권사 등에서 신용 대출 실행 고객", TypeDate},
		{"fa_int_loanpersonal", "신용대출을 실행 고객", TypeDate},
		{"fa_int_luxury", "100만원 이상 명품관련 결제 고객", TypeDate},
		{"fa_int_traveloverseas", "향후 1개월 내 해외 여행 목적의 출국 예정 추정 고객", TypeDate},
		{"fa_int_golf", "골프용품/골프장 관련 상품 결제 고객", TypeDate},
		{"fa_int_gym", "피트니스/헬스장 가맹점 결제 고객", TypeDate},
		{"fa_int_wedding", "결혼 준비 관련 상품 결제 및 활동 발생 고객", TypeDate},
	}},
	{Name: "industries", Columns: []Column{
		{"fa_ind_beauty", "미용 서비스 결제 이력", TypeDate},
		{"fa_ind_travel", "여행 관련 결제 이력", TypeDate},
		{"fa_ind_airsevice", "항공 서비스 이용", TypeDate},
		{"fa_ind_food", "음식점 결제 이력", TypeDate},
		{"fa_ind_shopping", "쇼핑 관련 결제 이력", TypeDate},
	}},
	{Name: "scores", Columns: []Column{
		{"sc_int_loan1stfinancial", "1금융권 신용대출 예측스코어", TypeDouble},
		{"sc_int_highincome", "고소득 예측스코어", TypeDouble},
		{"sc_ind_cosmetic", "뷰티 제품 결제 예측스코어", TypeDouble},
		{"sc_int_travel", "여행 관심도 예측스코어", TypeDouble},
	}},
	{Name: "flags", Columns: []Column{
		{"fi_npay_creditcheck", "신용조회 서비스 가입 여부", TypeBoolean},
		{"fi_npay_genderf", "여성 고객", TypeBoolean},
		{"fi_npay_age20", "20대 연령층", TypeBoolean},
		{"fi_npay_premium", "프리미엄 서비스 이용", TypeBoolean},
	}},
}

// LookupColumn finds a column by name.
func LookupColumn(name string) (Column, bool) {
	for _, g := range Columns {
		for _, c := range g.Columns {
			if c.Name == name {
				return c, true
			}
		}
	}
	return Column{}, false
}
