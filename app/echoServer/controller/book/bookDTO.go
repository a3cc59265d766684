package book

type SearchReq struct {
	Q     string `query:"q" validate:"required,notblank"`
	Limit int    `query:"limit" validate:"gte=0,lte=100"`
}

type AddToShelfReq struct {
	ISBN string `json:"isbn" validate:"required,notblank"`
}

type ProgressReq struct {
	Progress *int `json:"progress" validate:"required,gte=0,lte=100"`
}
