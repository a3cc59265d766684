package club

type CreateClubReq struct {
	Title       string  `json:"title" validate:"required,notblank,max=200"`
	Genre       string  `json:"genre" validate:"required,notblank,max=100"`
	Description string  `json:"description" validate:"max=2000"`
	CoverImage  *string `json:"cover_image" validate:"omitempty,url"`
}

type AssignBookReq struct {
	BookID int64 `json:"book_id" validate:"required,gt=0"`
	UserID int64 `json:"user_id" validate:"omitempty,gt=0"`
}

type InviteReq struct {
	Email string `json:"email" validate:"required,email"`
}
